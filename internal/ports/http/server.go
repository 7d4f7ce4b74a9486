package http

import (
	"agreement-notary/internal/app"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"agreement-notary/internal/ports/http/middleware/auth"
	"agreement-notary/internal/ports/http/middleware/cors"
	"agreement-notary/internal/saga"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type server struct {
	app            *app.App
	auth           auth.TokenValidator
	httpServer     *http.Server
	addr           string
	logger         *zap.Logger
	requestTimeout time.Duration
}

func NewServer(logger *zap.Logger, a *app.App, address string, validator auth.TokenValidator, requestTimeout time.Duration) server {
	return server{
		app:            a,
		auth:           validator,
		addr:           address,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

func (ser server) badRequest(w http.ResponseWriter, message string) {
	ser.writeError(w, http.StatusBadRequest, message)
	ser.logger.Warn(message)
}

func (ser server) serverError(w http.ResponseWriter, message string) {
	ser.writeError(w, http.StatusInternalServerError, message)
	ser.logger.Error(message)
}

func (ser server) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		ser.logger.Error("failed to write an error message: " + err.Error())
	}
}

// respondError maps domain errors onto status codes.
func (ser server) respondError(w http.ResponseWriter, err error) {
	switch {
	case app.IsNotFound(err):
		ser.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotCreator), errors.Is(err, ledger.ErrNotAuthorized), errors.Is(err, model.ErrNotAParty):
		ser.logger.Warn(err.Error())
		ser.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrUnverifiedCaller):
		ser.logger.Warn(err.Error())
		ser.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrFinalizationInProgress), errors.Is(err, saga.ErrNotReady),
		errors.Is(err, model.ErrAlreadySigned), errors.Is(err, model.ErrInvalidTransition):
		ser.logger.Warn(err.Error())
		ser.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, model.ErrInvalidAgreement), errors.Is(err, model.ErrDuplicateParty):
		ser.badRequest(w, err.Error())
	default:
		ser.serverError(w, err.Error())
	}
}

func (ser server) respond(w http.ResponseWriter, status int, body interface{}) {
	response, err := json.Marshal(body)
	if err != nil {
		ser.serverError(w, "marshalling the response failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		ser.logger.Error("failed to write the response: " + err.Error())
	}
}

func (ser server) registerHandlers(router *mux.Router) {
	router.HandleFunc("/health", ser.healthcheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.Handle("/agreements", ser.withCaller(ser.createAgreement)).Methods(http.MethodPost)
	api.HandleFunc("/agreements/{id}", ser.getAgreement).Methods(http.MethodGet)
	api.Handle("/agreements/{id}/parties", ser.withCaller(ser.addParties)).Methods(http.MethodPost)
	api.Handle("/agreements/{id}/sign", ser.withCaller(ser.signAgreement)).Methods(http.MethodPost)
	api.Handle("/agreements/{id}/cancel", ser.withCaller(ser.cancelAgreement)).Methods(http.MethodPost)
	api.Handle("/agreements/{id}/finalize", ser.withCaller(ser.finalizeAgreement)).Methods(http.MethodPost)
	api.HandleFunc("/agreements/{id}/finalization", ser.getFinalization).Methods(http.MethodGet)
	api.HandleFunc("/agreements/{id}/proof", ser.getAgreementProof).Methods(http.MethodGet)

	api.HandleFunc("/users/{identity}/agreements", ser.getUserAgreements).Methods(http.MethodGet)
	api.HandleFunc("/users/{identity}/stats", ser.getUserStats).Methods(http.MethodGet)

	api.HandleFunc("/proofs", ser.getProofs).Methods(http.MethodGet)
	api.HandleFunc("/proofs/{id}", ser.getProof).Methods(http.MethodGet)
	api.HandleFunc("/proofs/{id}/verify", ser.verifyProof).Methods(http.MethodPost)

	api.HandleFunc("/chains", ser.getChains).Methods(http.MethodGet)
	api.HandleFunc("/sessions", ser.connectSession).Methods(http.MethodPost)
	api.HandleFunc("/identities/{input}", ser.resolveIdentity).Methods(http.MethodGet)
}

// healthcheck always answers 200; status turns "degraded" while finalizations would fail.
func (ser server) healthcheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ser.requestContext(r)
	defer cancel()

	ser.respond(w, http.StatusOK, newHealthResponse(ser.app.Health(ctx)))
}

func (ser server) getChains(w http.ResponseWriter, r *http.Request) {
	ser.respond(w, http.StatusOK, chainsResponse{Chains: ser.app.CertificateChains()})
}

// withCaller requires a token and passes the resolved caller identity to the handler.
func (ser server) withCaller(handler func(http.ResponseWriter, *http.Request, identity.Identity)) http.Handler {
	return ser.auth.RequireCaller(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := auth.CallerFrom(r.Context())
		caller, err := ser.app.Caller(raw)
		if err != nil {
			ser.respondError(w, err)
			return
		}
		handler(w, r, caller)
	}))
}

// requestContext bounds the handling of a request.
func (ser server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), ser.requestTimeout)
}

// Handler returns the routed API with the CORS policy applied.
func (ser server) Handler() http.Handler {
	router := mux.NewRouter()
	ser.registerHandlers(router)
	return cors.AddCorsPolicy(router)
}

func (ser server) Run() error {
	ser.httpServer = &http.Server{
		Handler:           ser.Handler(),
		Addr:              ser.addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return ser.httpServer.ListenAndServe()
}

func normalize(param string) string {
	return strings.TrimSpace(param)
}
