package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// maxBodySize bounds inbound payloads; gossip messages and webhook
// headers are small.
const maxBodySize = 1 << 20

// Server is the inbound HTTP surface. Handlers only enqueue or reply,
// dispatch happens on the Messenger.
type Server struct {
	node *Node
	http *http.Server
}

// NewServer wires the four peer endpoints on addr.
func NewServer(node *Node, addr string) *Server {
	s := &Server{node: node}
	router := httprouter.New()
	router.POST("/blocks", s.enqueue)
	router.POST("/message", s.enqueue)
	router.HEAD("/message", s.alive)
	router.GET("/peers", s.peers)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      cors.Default().Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start listens in the background; the returned channel carries the
// terminal server error, if any.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	queued := s.node.Messenger().Put(body, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"queued": queued})
}

func (s *Server) alive(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) peers(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.node.Peers().List())
}
