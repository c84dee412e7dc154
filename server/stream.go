package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flashjig/flashjig/model"
)

const (
	ContentTypeNDJSON = "application/x-ndjson"
	ContentTypeSSE    = "text/event-stream"
)

// WantsSSE reports whether the client asked for Server-Sent Events framing.
func WantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ContentTypeSSE)
}

type eventWriter struct {
	w   io.Writer
	sse bool
}

func (e eventWriter) contentType() string {
	if e.sse {
		return ContentTypeSSE
	}
	return ContentTypeNDJSON
}

func (e eventWriter) write(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if e.sse {
		_, err = fmt.Fprintf(e.w, "data: %s\n\n", data)
		return err
	}
	_, err = e.w.Write(append(data, '\n'))
	return err
}
