package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/model"
)

// messageResponse は結果メッセージのみを返すAPIレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディを読み取る。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Request body must be valid JSON"))
		return false
	}
	return true
}
