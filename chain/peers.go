package chain

import "fmt"

// corePort is the peer port entry carrying the public REST API.
const corePort = "@arkecosystem/core-api"

// SelectPeers builds the API peer candidate list: the 20 best peers
// exposing the REST API, or the configured api peer alone when the
// listing fails. The result is never empty.
func SelectPeers(client Client, apiPeer string) []string {
	listed, err := client.Peers(apiPeer)
	if err != nil {
		log.WithError(err).Errorf("can not fetch peers from %s", apiPeer)
		return []string{apiPeer}
	}
	var peers []string
	if len(listed) > 20 {
		listed = listed[:20]
	}
	for _, candidate := range listed {
		if port, ok := candidate.Ports[corePort]; ok && port > 0 {
			peers = append(peers, fmt.Sprintf("http://%s:%d", candidate.IP, port))
		}
	}
	if len(peers) == 0 {
		return []string{apiPeer}
	}
	return peers
}
