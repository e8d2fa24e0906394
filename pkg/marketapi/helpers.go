package marketapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
	"github.com/curvemarkets/curvemarkets/pkg/market"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinel errors onto HTTP status codes and
// surfaces the full error text, which carries the violated constraint and
// the offending inputs for caller retry logic.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrPhase),
		errors.Is(err, market.ErrSlippage),
		errors.Is(err, market.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, market.ErrInvariant):
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}

// marketIDParam parses the {id} path parameter using Go 1.22 routing.
func marketIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// parseAmountField parses a decimal amount field ("12.5") into its scaled
// representation, rejecting empty strings.
func parseAmountField(v, name string) (*uint256.Int, error) {
	if v == "" {
		return nil, errors.New("missing " + name)
	}
	amt, err := fixedpoint.FromDecimal(v)
	if err != nil {
		return nil, errors.New("invalid " + name + ": " + err.Error())
	}
	return amt, nil
}
