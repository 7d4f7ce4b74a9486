package http

import (
	"agreement-notary/internal/identity"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type sessionRequest struct {
	Keystore   json.RawMessage `json:"keystore"`
	Passphrase string          `json:"passphrase"`
}

type sessionResponse struct {
	Address  string `json:"address"`
	Identity string `json:"identity"`
	ChainID  int64  `json:"chainId"`
}

type identityResponse struct {
	Identity string `json:"identity"`
	Verified bool   `json:"verified"`
	Source   string `json:"source"`
	Short    string `json:"short"`
}

// connectSession unlocks a keystore file; the resulting session pays for certificate mints.
func (ser server) connectSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ser.badRequest(w, "failed to decode the request: "+err.Error())
		return
	}

	// the keystore may be sent as an object or as a JSON encoded string
	keystore := []byte(body.Keystore)
	var encoded string
	if err := json.Unmarshal(body.Keystore, &encoded); err == nil {
		keystore = []byte(encoded)
	}

	session, id, err := ser.app.ConnectKeystore(keystore, body.Passphrase)
	if err != nil {
		ser.respondError(w, err)
		return
	}

	ser.respond(w, http.StatusCreated, sessionResponse{
		Address:  session.Address().Hex(),
		Identity: id.String(),
		ChainID:  session.ChainID(),
	})
}

func (ser server) resolveIdentity(w http.ResponseWriter, r *http.Request) {
	resolution := ser.app.ResolveIdentity(normalize(mux.Vars(r)["input"]))

	ser.respond(w, http.StatusOK, identityResponse{
		Identity: resolution.Identity.String(),
		Verified: resolution.Verified,
		Source:   string(resolution.Source),
		Short:    identity.DisplayShort(resolution.Identity),
	})
}
