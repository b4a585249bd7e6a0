package node

// broadcastJob is one outbound fan-out: msg posted to every listed
// peer.
type broadcastJob struct {
	msg   *Message
	peers []string
}

// Broadcaster is the single worker draining outbound gossip, so
// callers never block on the network.
type Broadcaster struct {
	transport Transport
	jobs      chan *broadcastJob
	quit      chan struct{}
	done      chan struct{}
}

// NewBroadcaster wires the outbound worker on the given transport.
func NewBroadcaster(transport Transport) *Broadcaster {
	return &Broadcaster{
		transport: transport,
		jobs:      make(chan *broadcastJob, 256),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Broadcast queues msg for delivery to the listed peers.
func (b *Broadcaster) Broadcast(msg *Message, peers ...string) {
	select {
	case b.jobs <- &broadcastJob{msg: msg, peers: peers}:
	case <-b.quit:
	}
}

// Start launches the worker loop.
func (b *Broadcaster) Start() {
	go b.run()
	log.Info("broadcaster set")
}

// Stop terminates the worker; queued jobs are dropped.
func (b *Broadcaster) Stop() {
	close(b.quit)
	<-b.done
	log.Info("broadcaster clean exit")
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case job := <-b.jobs:
			for _, peer := range job.peers {
				if err := b.transport.PostMessage(peer, job.msg); err != nil {
					log.WithError(err).Debugf("message to %s lost", peer)
				}
			}
		}
	}
}
