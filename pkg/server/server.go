package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yuru108/Retro-Messenger/pkg/database"
	"github.com/yuru108/Retro-Messenger/pkg/protocol"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

func init() {
	// Defaults so tests and library users get sane loggers without initLoggers
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	TCPPort               int
	HTTPPort              int // Public HTTP port for /ws (0 = disabled)
	MetricsPort           int // Internal metrics port (0 = disabled)
	MaxMessageLength      uint32
	SessionTimeoutSeconds int
	ProtocolVersion       uint8
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:               7667,
		HTTPPort:              8080,
		MetricsPort:           9090,
		MaxMessageLength:      4096,
		SessionTimeoutSeconds: 120,
		ProtocolVersion:       protocol.ProtocolVersion,
	}
}

// Server is the Retro-Messenger server
type Server struct {
	db       *database.DB
	listener net.Listener
	sessions *SessionManager
	config   ServerConfig
	shutdown chan struct{}
	wg       sync.WaitGroup
	metrics  *Metrics
}

// NewServer creates a new server instance
func NewServer(dbPath string, config ServerConfig) (*Server, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	metrics := NewMetrics()
	sessions := NewSessionManager()
	sessions.SetMetrics(metrics)

	return &Server{
		db:       db,
		sessions: sessions,
		config:   config,
		shutdown: make(chan struct{}),
		metrics:  metrics,
	}, nil
}

// getServerDataDir returns the server data directory, creating it if needed
func getServerDataDir() (string, error) {
	var dataDir string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "retro-messenger")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "retro-messenger")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// InitLoggers sets up error and debug loggers writing to the data dir
func InitLoggers() error {
	dataDir, err := getServerDataDir()
	if err != nil {
		return err
	}

	// Error log goes to stderr and errors.log
	errorLogPath := filepath.Join(dataDir, "errors.log")
	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	// Startup marker, for distinguishing between runs
	startupMsg := fmt.Sprintf("=== Server started at %s ===\n", time.Now().Format(time.RFC3339))
	if _, err := errorFile.WriteString(startupMsg); err != nil {
		return err
	}

	errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

	// Redirect standard log to stdout and server.log, truncated per run
	serverLogPath := filepath.Join(dataDir, "server.log")
	serverLogFile, err := os.OpenFile(serverLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, serverLogFile))

	return nil
}

// EnableDebugLogging enables debug logging to debug.log
func (s *Server) EnableDebugLogging() {
	dataDir, err := getServerDataDir()
	if err != nil {
		log.Printf("Failed to get data directory: %v", err)
		return
	}

	debugLogPath := filepath.Join(dataDir, "debug.log")
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Printf("Failed to open debug.log: %v", err)
		return
	}

	debugLog = log.New(debugLogFile, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start starts the TCP listener and HTTP servers
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP server listening on %s", listener.Addr())

	// Internal metrics server - never expose publicly
	if s.config.MetricsPort > 0 {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", s.metrics.Handler())
			metricsMux.HandleFunc("/health", s.HealthHandler)
			metricsAddr := fmt.Sprintf(":%d", s.config.MetricsPort)
			log.Printf("Metrics server listening on %s (/metrics, /health) - INTERNAL ONLY", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Public HTTP server for WebSocket clients
	if s.config.HTTPPort > 0 {
		go func() {
			publicMux := http.NewServeMux()
			publicMux.HandleFunc("/ws", s.HandleWebSocket)
			httpAddr := fmt.Sprintf(":%d", s.config.HTTPPort)
			log.Printf("Public HTTP server listening on %s (/ws)", httpAddr)
			if err := http.ListenAndServe(httpAddr, publicMux); err != nil {
				log.Printf("Public HTTP server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go s.sessionCleanupLoop()

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the address the TCP listener is bound to
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HealthHandler reports basic liveness for the internal HTTP server
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok\nsessions: %d\nonline users: %d\n",
		len(s.sessions.GetAllSessions()), s.sessions.CountOnlineUsers())
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
		log.Println("TCP listener closed")
	}

	log.Println("Notifying connected clients of shutdown...")
	s.notifyClientsOfShutdown()

	log.Println("Closing all client sessions...")
	s.sessions.CloseAll()

	log.Println("Waiting for background goroutines to finish...")
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		log.Printf("Error during database close: %v", err)
		return err
	}

	log.Println("Graceful shutdown complete")
	return nil
}

// notifyClientsOfShutdown sends a DISCONNECT frame to all connected clients
func (s *Server) notifyClientsOfShutdown() {
	sessions := s.sessions.GetAllSessions()
	if len(sessions) == 0 {
		return
	}

	reason := "Server shutting down"
	disconnectMsg := &protocol.DisconnectMessage{Reason: &reason}
	payload, err := disconnectMsg.Encode()
	if err != nil {
		log.Printf("Failed to encode disconnect message: %v", err)
		return
	}

	frame := &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Type:    protocol.TypeDisconnect,
		Flags:   0,
		Payload: payload,
	}

	sent := 0
	for _, sess := range sessions {
		if err := sess.Conn.EncodeFrame(frame); err == nil {
			sent++
		}
	}

	log.Printf("Shutdown notification sent to %d/%d sessions", sent, len(sessions))
}

// acceptLoop accepts incoming TCP connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection performs initial setup for a connection, then runs its
// message loop. Shared by the TCP accept loop and the WebSocket endpoint.
func (s *Server) handleConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := s.sessions.CreateSession(conn, time.Now().UnixMilli())
	debugLog.Printf("New connection from %s (session %d)", conn.RemoteAddr(), sess.ID)

	// Greet with SERVER_CONFIG before the client's handshake frame
	if err := s.sendServerConfig(sess); err != nil {
		s.sessions.RemoveSession(sess.ID)
		return
	}

	s.messageLoop(sess)
}

// messageLoop reads and dispatches frames until the connection closes.
// The first frame must complete authentication (REGISTER or LOGIN).
func (s *Server) messageLoop(sess *Session) {
	defer s.sessions.RemoveSession(sess.ID)

	for {
		frame, err := sess.Conn.ReadFrame()
		if err != nil {
			if err == io.EOF {
				debugLog.Printf("Session %d: Client disconnected", sess.ID)
			} else {
				debugLog.Printf("Session %d: Read error: %v", sess.ID, err)
			}
			return
		}

		debugLog.Printf("Session %d <- RECV: Type=0x%02X Flags=0x%02X PayloadLen=%d", sess.ID, frame.Type, frame.Flags, len(frame.Payload))

		sess.Touch(time.Now().UnixMilli())

		if s.metrics != nil {
			s.metrics.RecordMessageReceived(messageTypeToString(frame.Type))
		}

		if err := s.handleMessage(sess, frame); err != nil {
			if errors.Is(err, ErrClientDisconnecting) {
				debugLog.Printf("Session %d disconnected gracefully", sess.ID)
				return
			}
			if errors.Is(err, ErrAuthRejected) {
				debugLog.Printf("Session %d: handshake rejected, closing", sess.ID)
				return
			}
			log.Printf("Session %d handle error: %v", sess.ID, err)
			s.sendError(sess, protocol.ErrCodeInternalError, "Internal error")
		}
	}
}

// handleMessage dispatches a frame to the appropriate handler. Until the
// session authenticates, only REGISTER, LOGIN, PING and DISCONNECT are
// accepted.
func (s *Server) handleMessage(sess *Session, frame *protocol.Frame) error {
	switch frame.Type {
	case protocol.TypePing:
		return s.handlePing(sess, frame)
	case protocol.TypeDisconnect:
		return s.handleDisconnect(sess, frame)
	case protocol.TypeRegister:
		return s.handleRegister(sess, frame)
	case protocol.TypeLogin:
		return s.handleLogin(sess, frame)
	}

	if !sess.Authenticated() {
		return s.sendError(sess, protocol.ErrCodeAuthRequired, "Authentication required")
	}

	switch frame.Type {
	case protocol.TypeSendMessage:
		return s.handleSendMessage(sess, frame)
	case protocol.TypeGetHistory:
		return s.handleGetHistory(sess, frame)
	case protocol.TypeGetUnread:
		return s.handleGetUnread(sess, frame)
	case protocol.TypeListUsers:
		return s.handleListUsers(sess, frame)
	case protocol.TypeListRooms:
		return s.handleListRooms(sess, frame)
	case protocol.TypeCreateRoom:
		return s.handleCreateRoom(sess, frame)
	case protocol.TypeRenameRoom:
		return s.handleRenameRoom(sess, frame)
	case protocol.TypeLogout:
		return s.handleLogout(sess, frame)
	default:
		return s.sendError(sess, protocol.ErrCodeUnsupportedType, "Unsupported message type")
	}
}

// sendServerConfig sends the SERVER_CONFIG greeting to a session
func (s *Server) sendServerConfig(sess *Session) error {
	msg := &protocol.ServerConfigMessage{
		ProtocolVersion:       s.config.ProtocolVersion,
		MaxMessageLength:      s.config.MaxMessageLength,
		SessionTimeoutSeconds: uint32(s.config.SessionTimeoutSeconds),
	}
	return s.sendMessage(sess, protocol.TypeServerConfig, msg)
}

// sendError sends an ERROR message to a session
func (s *Server) sendError(sess *Session, code uint16, message string) error {
	msg := &protocol.ErrorMessage{
		ErrorCode: code,
		Message:   message,
	}
	return s.sendMessage(sess, protocol.TypeError, msg)
}

// sendMessage encodes a protocol message into a frame and sends it
func (s *Server) sendMessage(sess *Session, msgType uint8, msg protocol.ProtocolMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	frame := &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Type:    msgType,
		Flags:   0,
		Payload: payload,
	}

	debugLog.Printf("Session %d -> SEND: Type=0x%02X PayloadLen=%d", sess.ID, msgType, len(payload))
	if s.metrics != nil {
		s.metrics.RecordMessageSent(messageTypeToString(msgType))
	}
	if err := sess.Conn.EncodeFrame(frame); err != nil {
		errorLog.Printf("Session %d: EncodeFrame failed (Type=0x%02X): %v", sess.ID, msgType, err)
		return err
	}
	return nil
}

// sessionCleanupLoop periodically closes idle sessions
func (s *Server) sessionCleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.cleanupStaleSessions()
		}
	}
}

// cleanupStaleSessions removes sessions that have been inactive past the timeout
func (s *Server) cleanupStaleSessions() {
	timeout := time.Duration(s.config.SessionTimeoutSeconds) * time.Second
	cutoff := time.Now().Add(-timeout).UnixMilli()

	for _, sess := range s.sessions.GetAllSessions() {
		if sess.LastActivity() < cutoff {
			debugLog.Printf("Closing stale session %d (inactive for %v)", sess.ID, timeout)
			s.sessions.RemoveSession(sess.ID)
		}
	}
}

// messageTypeToString names frame types for metrics labels
func messageTypeToString(msgType uint8) string {
	switch msgType {
	case protocol.TypeRegister:
		return "REGISTER"
	case protocol.TypeLogin:
		return "LOGIN"
	case protocol.TypeSendMessage:
		return "SEND_MESSAGE"
	case protocol.TypeGetHistory:
		return "GET_HISTORY"
	case protocol.TypeGetUnread:
		return "GET_UNREAD"
	case protocol.TypeListUsers:
		return "LIST_USERS"
	case protocol.TypeListRooms:
		return "LIST_ROOMS"
	case protocol.TypeCreateRoom:
		return "CREATE_ROOM"
	case protocol.TypeRenameRoom:
		return "RENAME_ROOM"
	case protocol.TypeLogout:
		return "LOGOUT"
	case protocol.TypePing:
		return "PING"
	case protocol.TypeDisconnect:
		return "DISCONNECT"
	case protocol.TypeAuthResponse:
		return "AUTH_RESPONSE"
	case protocol.TypeMessageSent:
		return "MESSAGE_SENT"
	case protocol.TypeMessageHistory:
		return "MESSAGE_HISTORY"
	case protocol.TypeUnreadMessages:
		return "UNREAD_MESSAGES"
	case protocol.TypeUserList:
		return "USER_LIST"
	case protocol.TypeRoomList:
		return "ROOM_LIST"
	case protocol.TypeRoomCreated:
		return "ROOM_CREATED"
	case protocol.TypeRoomRenamed:
		return "ROOM_RENAMED"
	case protocol.TypeNewMessage:
		return "NEW_MESSAGE"
	case protocol.TypePong:
		return "PONG"
	case protocol.TypeError:
		return "ERROR"
	case protocol.TypeServerConfig:
		return "SERVER_CONFIG"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", msgType)
	}
}
