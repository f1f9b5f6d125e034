package hub

// Registry maps users to their live connections and back. Pure bookkeeping,
// owned by the hub goroutine; "not found" is a normal outcome everywhere.
type Registry struct {
	byConn map[string]*Client
	byUser map[int64]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Client),
		byUser: make(map[int64]map[string]*Client),
	}
}

// Register adds a connection; registering the same connection id twice is a
// no-op.
func (r *Registry) Register(c *Client) {
	if _, ok := r.byConn[c.ID]; ok {
		return
	}
	r.byConn[c.ID] = c
	set := r.byUser[c.UserID]
	if set == nil {
		set = make(map[string]*Client)
		r.byUser[c.UserID] = set
	}
	set[c.ID] = c
}

// Unregister removes the connection and returns its owner. A connection that
// was never registered (disconnect racing a failed registration) reports
// ok=false.
func (r *Registry) Unregister(connID string) (int64, bool) {
	c, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	delete(r.byConn, connID)
	if set := r.byUser[c.UserID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	return c.UserID, true
}

func (r *Registry) ConnectionsOf(userID int64) []*Client {
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) OwnerOf(connID string) (int64, bool) {
	c, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	return c.UserID, true
}

func (r *Registry) Get(connID string) (*Client, bool) {
	c, ok := r.byConn[connID]
	return c, ok
}

func (r *Registry) ConnCount() int {
	return len(r.byConn)
}

func (r *Registry) UserCount() int {
	return len(r.byUser)
}
