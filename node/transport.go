package node

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Transport is the outbound side of gossip. Implementations must be
// safe for concurrent use; the Broadcaster is its only caller on hot
// paths but prospection runs from the Messenger too.
type Transport interface {
	// PostMessage delivers a gossip message to a peer's /message.
	PostMessage(peer string, msg *Message) error

	// PeerList fetches a peer's /peers.
	PeerList(peer string) ([]string, error)

	// Alive probes a peer with HEAD /message.
	Alive(peer string) bool
}

// HTTPTransport implements Transport over plain HTTP.
type HTTPTransport struct {
	http *http.Client
}

// NewHTTPTransport returns a Transport with the given request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{http: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) PostMessage(peer string, msg *Message) error {
	blob, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	resp, err := t.http.Post(peer+"/message", "application/json", bytes.NewReader(blob))
	if err != nil {
		return errors.Wrapf(err, "POST %s/message", peer)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return errors.Errorf("POST %s/message: status %d", peer, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) PeerList(peer string) ([]string, error) {
	resp, err := t.http.Get(peer + "/peers")
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s/peers", peer)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s/peers: status %d", peer, resp.StatusCode)
	}
	var peers []string
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (t *HTTPTransport) Alive(peer string) bool {
	resp, err := t.http.Head(peer + "/message")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
