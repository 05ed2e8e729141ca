package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sprintpoker/backend/internal/registry"
)

// CreateRoom mints a fresh unused room code. The room itself is created
// lazily on the first join, matching the generateRoom wire message.
func CreateRoom(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan string, 1)
		reg.Inbox() <- registry.GenerateCode{Reply: reply}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: <-reply})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
