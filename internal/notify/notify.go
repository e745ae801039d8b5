package notify

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"sync"
)

const (
	RegisterMessageType = "register"
	VoteMessageType     = "vote_landed"
	MediaMessageType    = "new_media"
)

// RegisterMessage is what a client sends to start receiving pushes. The
// address is the wallet address the client wants notifications for.
type RegisterMessage struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// PushMessage is the wire shape of every outbound notification.
type PushMessage struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Client struct {
	Address string
	Addr    *net.UDPAddr
}

// Registry maps wallet addresses to their last-known UDP endpoint.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(address string, addr *net.UDPAddr) {
	if address == "" || addr == nil {
		return
	}
	r.mu.Lock()
	r.clients[address] = Client{Address: address, Addr: addr}
	r.mu.Unlock()
}

func (r *Registry) Remove(address string) {
	r.mu.Lock()
	delete(r.clients, address)
	r.mu.Unlock()
}

func (r *Registry) Lookup(address string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[address]
	return c, ok
}

func (r *Registry) Snapshot() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Server listens for UDP register messages and pushes notifications back to
// registered clients. Delivery is fire and forget: a voter who never
// registered, or whose endpoint went away, is silently skipped.
type Server struct {
	addr     string
	registry *Registry
	logger   *log.Logger
	conn     *net.UDPConn
}

func NewServer(addr string, registry *Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{addr: addr, registry: registry, logger: logger}
}

// Listen binds the UDP socket. It must complete before Run is spawned and
// before any Notify/Broadcast caller starts, so the connection is published
// to those goroutines without locking.
func (s *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *Server) Run() error {
	if s.conn == nil {
		return errors.New("notify: Listen must run first")
	}
	conn := s.conn
	defer conn.Close()

	s.logger.Printf("[notify] UDP server listening on %s", conn.LocalAddr())

	buffer := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			return err
		}
		msg, err := parseRegisterMessage(buffer[:n])
		if err != nil {
			s.logger.Printf("[notify] invalid UDP message from %s: %v", addr, err)
			continue
		}
		if msg.Type != RegisterMessageType {
			continue
		}
		s.registry.Register(msg.Address, addr)
		s.logger.Printf("[notify] registered client for %s (%s)", msg.Address, addr)
	}
}

func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Notify pushes one message to the client registered for address, if any.
// Satisfies the vote reconciler's notifier surface.
func (s *Server) Notify(address, title, body string) {
	if s.conn == nil {
		return
	}
	client, ok := s.registry.Lookup(address)
	if !ok {
		return
	}
	payload, err := json.Marshal(PushMessage{Type: VoteMessageType, Title: title, Body: body})
	if err != nil {
		s.logger.Printf("[notify] marshal push: %v", err)
		return
	}
	s.sendWithRetry(client, payload)
}

// BroadcastNewMedia tells every registered client about a freshly imported
// title.
func (s *Server) BroadcastNewMedia(title string) {
	if s.conn == nil {
		return
	}
	payload, err := json.Marshal(PushMessage{Type: MediaMessageType, Title: "New on MovieMeter", Body: title})
	if err != nil {
		s.logger.Printf("[notify] marshal broadcast: %v", err)
		return
	}
	for _, client := range s.registry.Snapshot() {
		s.sendWithRetry(client, payload)
	}
}

func (s *Server) sendWithRetry(client Client, payload []byte) {
	if err := s.sendOnce(client, payload); err == nil {
		return
	}
	if err := s.sendOnce(client, payload); err != nil {
		s.logger.Printf("[notify] push to %s at %s: %v", client.Address, client.Addr, err)
		s.registry.Remove(client.Address)
	}
}

func (s *Server) sendOnce(client Client, payload []byte) error {
	if client.Addr == nil {
		return errors.New("missing client address")
	}
	_, err := s.conn.WriteToUDP(payload, client.Addr)
	return err
}

func parseRegisterMessage(data []byte) (RegisterMessage, error) {
	var msg RegisterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Address == "" || msg.Type == "" {
		return msg, errors.New("missing required fields")
	}
	return msg, nil
}
