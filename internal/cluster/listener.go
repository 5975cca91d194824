package cluster

import (
	"github.com/deepaksubu/norbert/logger"
)

// ServerHooks is the slice of NetworkServer behavior ClusterListener needs
// to react to coordinator events, kept narrow so cluster does not import
// the server package. OnConnected owns the decision of whether to cycle
// availability: the server, not the listener, tracks whether a later
// MarkUnavailable call should suppress the next reconnection's restore.
type ServerHooks interface {
	OnConnected()
	ShutdownFromCluster()
}

// ServerListener adapts Coordinator events onto a NetworkServer's hooks.
type ServerListener struct {
	hooks ServerHooks
}

// NewServerListener returns a listener bound to hooks.
func NewServerListener(hooks ServerHooks) *ServerListener {
	return &ServerListener{hooks: hooks}
}

// OnEvent reacts to a coordinator event. It builds its logger fresh on
// every call (rather than caching one at package or struct init) so it
// always reflects whichever *zap.SugaredLogger logger.Initialize most
// recently installed as the global logger.
func (l *ServerListener) OnEvent(e Event) {
	log := logger.ComponentLogger("cluster")
	switch e.Kind {
	case Connected:
		log.Infow("connected", logger.FieldCount, len(e.Nodes))
		l.hooks.OnConnected()
	case NodesChanged:
		log.Debugw("nodes changed", logger.FieldCount, len(e.Nodes))
	case Disconnected:
		log.Warnw("disconnected")
	case Shutdown:
		log.Warnw("coordinator shut down, stopping server")
		l.hooks.ShutdownFromCluster()
	}
}
