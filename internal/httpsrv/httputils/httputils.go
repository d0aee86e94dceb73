package httputils

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body = append(body, '\n')
	Write(w, status, "application/json", body)
}

func WriteText(w http.ResponseWriter, status int, text string) {
	Write(w, status, "text/plain; charset=utf-8", []byte(text))
}

// Write sends body with an explicit Content-Length so that keep-alive
// connections never fall back to chunked encoding for these small payloads.
func Write(w http.ResponseWriter, status int, contentType string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
