package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type verifyRequest struct {
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
}

func (ser server) getProofs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	proofs, err := ser.app.GetAllProofs(ctx)
	if err != nil {
		ser.respondError(w, err)
		return
	}

	response := make([]proofResponse, len(proofs))
	for i, proof := range proofs {
		response[i] = newProofResponse(proof)
	}
	ser.respond(w, http.StatusOK, response)
}

func (ser server) getProof(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	proof, err := ser.app.GetProof(ctx, normalize(mux.Vars(r)["id"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, newProofResponse(proof))
}

func (ser server) getAgreementProof(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	proof, err := ser.app.GetAgreementProof(ctx, normalize(mux.Vars(r)["id"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, newProofResponse(proof))
}

func (ser server) verifyProof(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ser.badRequest(w, "failed to decode the request: "+err.Error())
		return
	}

	ctx, cancel := ser.requestContext(r)
	defer cancel()

	valid, err := ser.app.VerifyProof(ctx, normalize(mux.Vars(r)["id"]), []byte(body.Content), body.ContentHash)
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, map[string]bool{"valid": valid})
}
