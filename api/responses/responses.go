package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

// RetryAfterSeconds is advertised on retryable failures (provider or
// gateway outages, rate limits).
const RetryAfterSeconds = 5

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(nil, w, status, successEnvelope{Data: data})
}

// WriteError renders err as the public error envelope. Messages of client
// errors are passed through; server-side failures only expose the generic
// message for their code while the full chain goes to the log.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := apiError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError {
		if m := typed.Message(); m != "" {
			body.Message = m
		}
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logRequestError(ctx, logg, err, typed, meta.HTTPStatus)
	}

	if meta.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	writeJSON(logg, w, meta.HTTPStatus, errorEnvelope{Error: body})
}

func logRequestError(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	if status < http.StatusInternalServerError {
		fields := map[string]any{
			"error_code": string(typed.Code()),
			"status":     status,
		}
		if details := typed.Details(); details != nil {
			fields["details"] = details
		}
		logg.Warn(logg.WithFields(ctx, fields), typed.Message())
		return
	}

	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"status":      status,
	}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_detail"] = dump.PGDetail
		fields["pg_message"] = dump.PGMessage
		fields["pg_table"] = dump.PGTable
		fields["pg_constraint"] = dump.PGConstraint
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(logg *logger.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logg != nil {
		logg.Error(context.Background(), "failed to encode response", err)
	}
}
