package httptransport

import (
	"fmt"
	"net/http"
)

// flushWriter wraps http.ResponseWriter and flushes every write so SSE
// bytes reach the client immediately instead of sitting in a buffer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	if fw.f == nil {
		return 0, fmt.Errorf("httptransport: streaming not supported by %T", fw.w)
	}
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}

// writeSSEEvent frames one SSE event per the id:/event:/data: convention,
// omitting the event: line when eventType is empty.
func writeSSEEvent(w *flushWriter, id uint64, eventType string, data []byte) error {
	frame := fmt.Sprintf("id: %d\n", id)
	if eventType != "" {
		frame += fmt.Sprintf("event: %s\n", eventType)
	}
	frame += "data: " + string(data) + "\n\n"
	_, err := w.Write([]byte(frame))
	return err
}

// writeSSEComment writes a keep-alive comment line.
func writeSSEComment(w *flushWriter, comment string) error {
	_, err := w.Write([]byte(": " + comment + "\n\n"))
	return err
}
