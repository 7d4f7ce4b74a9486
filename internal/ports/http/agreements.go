package http

import (
	"agreement-notary/internal/app"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/saga"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// max document size is 10MB
const maxDocumentSize = 10 << 20

type createAgreementRequest struct {
	TemplateType string   `json:"templateType"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	ContentHash  string   `json:"contentHash"`
	Parties      []string `json:"parties"`
}

type partiesRequest struct {
	Parties []string `json:"parties"`
}

type signResponse struct {
	Agreement         agreementResponse        `json:"agreement"`
	Finalization      *saga.FinalizationStatus `json:"finalization,omitempty"`
	FinalizationError string                   `json:"finalizationError,omitempty"`
}

func (ser server) createAgreement(w http.ResponseWriter, r *http.Request, caller identity.Identity) {
	request, err := ser.readCreateAgreementParams(r)
	if err != nil {
		ser.badRequest(w, err.Error())
		return
	}

	ctx, cancel := ser.requestContext(r)
	defer cancel()

	id, err := ser.app.CreateAgreement(ctx, caller, request)
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusCreated, map[string]string{"id": id})
}

// readCreateAgreementParams accepts a JSON body or a multipart form with the document in docFile.
func (ser server) readCreateAgreementParams(r *http.Request) (app.NewAgreement, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return ser.readCreateAgreementForm(r)
	}

	var body createAgreementRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDocumentSize)).Decode(&body); err != nil {
		return app.NewAgreement{}, errors.New("failed to decode the request: " + err.Error())
	}

	return app.NewAgreement{
		TemplateType: normalize(body.TemplateType),
		Title:        normalize(body.Title),
		Content:      []byte(body.Content),
		ContentHash:  normalize(body.ContentHash),
		Parties:      body.Parties,
	}, nil
}

func (ser server) readCreateAgreementForm(r *http.Request) (app.NewAgreement, error) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		return app.NewAgreement{}, errors.New("failed to parse the form: " + err.Error())
	}

	request := app.NewAgreement{
		TemplateType: normalize(r.FormValue("templateType")),
		Title:        normalize(r.FormValue("title")),
		ContentHash:  normalize(r.FormValue("contentHash")),
	}
	for _, party := range strings.Split(r.FormValue("parties"), ",") {
		if party = normalize(party); party != "" {
			request.Parties = append(request.Parties, party)
		}
	}

	file, handler, err := r.FormFile("docFile")
	if errors.Is(err, http.ErrMissingFile) {
		return request, nil
	}
	if err != nil {
		return app.NewAgreement{}, errors.New("failed to get the document file from form: " + err.Error())
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return app.NewAgreement{}, errors.New("failed to read the document file: " + err.Error())
	}
	ser.logger.Info("received document", zap.String("file", handler.Filename), zap.Int64("size", handler.Size))

	request.Content = content
	return request, nil
}

func (ser server) getAgreement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	agreement, err := ser.app.GetAgreement(ctx, normalize(mux.Vars(r)["id"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, newAgreementResponse(agreement))
}

func (ser server) getUserAgreements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	agreements, err := ser.app.GetUserAgreements(ctx, normalize(mux.Vars(r)["identity"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	response := make([]agreementResponse, len(agreements))
	for i, agreement := range agreements {
		response[i] = newAgreementResponse(agreement)
	}
	ser.respond(w, http.StatusOK, response)
}

func (ser server) getUserStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	stats, err := ser.app.GetUserStats(ctx, normalize(mux.Vars(r)["identity"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, statsResponse{
		Total:             stats.Total,
		PendingSignatures: stats.PendingSignatures,
		Signed:            stats.Signed,
	})
}

func (ser server) addParties(w http.ResponseWriter, r *http.Request, caller identity.Identity) {
	var body partiesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ser.badRequest(w, "failed to decode the request: "+err.Error())
		return
	}

	ctx, cancel := ser.requestContext(r)
	defer cancel()

	if err := ser.app.AddParties(ctx, caller, normalize(mux.Vars(r)["id"]), body.Parties); err != nil {
		ser.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// signAgreement may run the whole finalization, so each of its steps is bounded separately
// instead of by the request timeout.
func (ser server) signAgreement(w http.ResponseWriter, r *http.Request, caller identity.Identity) {
	result, err := ser.app.Sign(r.Context(), caller, normalize(mux.Vars(r)["id"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	response := signResponse{
		Agreement:    newAgreementResponse(result.Agreement),
		Finalization: result.Finalization,
	}
	if result.FinalizationError != nil {
		response.FinalizationError = result.FinalizationError.Error()
	}
	ser.respond(w, http.StatusOK, response)
}

func (ser server) cancelAgreement(w http.ResponseWriter, r *http.Request, caller identity.Identity) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	if err := ser.app.Cancel(ctx, caller, normalize(mux.Vars(r)["id"])); err != nil {
		ser.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (ser server) finalizeAgreement(w http.ResponseWriter, r *http.Request, caller identity.Identity) {
	status, err := ser.app.Finalize(r.Context(), caller, normalize(mux.Vars(r)["id"]))

	var stepErr *saga.StepError
	if errors.As(err, &stepErr) {
		ser.logger.Warn(stepErr.Error())
		ser.respond(w, stepErrorStatus(stepErr), status)
		return
	}
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, status)
}

func (ser server) getFinalization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	status, err := ser.app.FinalizationStatus(ctx, normalize(mux.Vars(r)["id"]))
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusOK, status)
}

func stepErrorStatus(err *saga.StepError) int {
	switch err.Kind {
	case saga.KindInput:
		return http.StatusBadRequest
	case saga.KindPrecondition:
		return http.StatusPreconditionFailed
	case saga.KindConnectivity:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
