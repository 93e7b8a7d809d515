package tree

// Server is an entry of the tree file. Uplink is the name of the server this
// one was linked to when it joined the network; it is empty for the server
// that started the network.
type Server struct {
	Name    string
	NetAddr string
	Uplink  string `json:",omitempty"`
}

// NewServer creates a new Server.
func NewServer(name, netAddr, uplink string) *Server {
	return &Server{
		Name:    name,
		NetAddr: netAddr,
		Uplink:  uplink,
	}
}
