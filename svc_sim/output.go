package svc_sim

import (
	"net"
	"strconv"
	"strings"
)

// ScoreSender publishes score snapshots over UDP as CSV.
type ScoreSender struct {
	conn *net.UDPConn
}

// NewScoreSender creates a UDP sender for the given address. An empty
// address yields a sender that drops everything.
func NewScoreSender(addr string) (*ScoreSender, error) {
	if addr == "" {
		return &ScoreSender{}, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &ScoreSender{conn: conn}, nil
}

// Close releases the UDP socket.
func (s *ScoreSender) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Send writes "run,t,total,cp1,...,cpN" as a CSV payload.
func (s *ScoreSender) Send(snap ScoreSnapshot) {
	if s == nil || s.conn == nil {
		return
	}
	_, _ = s.conn.Write([]byte(formatScore(snap)))
}

func formatScore(snap ScoreSnapshot) string {
	fields := make([]string, 0, 3+len(snap.Checkpoints))
	fields = append(fields,
		snap.RunID,
		strconv.FormatFloat(snap.T, 'f', 3, 64),
		strconv.FormatFloat(snap.Total, 'f', 4, 64),
	)
	for _, s := range snap.Checkpoints {
		fields = append(fields, strconv.FormatFloat(s, 'f', 4, 64))
	}
	return strings.Join(fields, ",")
}
