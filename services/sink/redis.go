package sink

import (
	"strings"

	"github.com/garyburd/redigo/redis"

	"powertool-go/services/sampler"
)

// Redis stores the latest values of each record in a hash, one field per
// <rail>.<name>, and optionally publishes a "<key>: <value>" line per field
// on a channel.
type Redis struct {
	conn    redis.Conn
	hash    string
	channel string
}

// DialRedis connects to addr over TCP.
func DialRedis(addr, hash, channel string) (*Redis, error) {
	c, err := redis.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewRedis(c, hash, channel), nil
}

// NewRedis takes ownership of conn. An empty channel disables publishing.
func NewRedis(conn redis.Conn, hash, channel string) *Redis {
	if hash == "" {
		hash = "powertool"
	}
	return &Redis{conn: conn, hash: hash, channel: channel}
}

func (s *Redis) Write(rec sampler.Record) error {
	fields := Fields(rec)
	args := redis.Args{}.Add(s.hash).Add("sample_num", rec.SampleNum)
	for _, f := range fields {
		args = args.Add(f.Key, f.Value)
	}
	if err := s.conn.Send("HMSET", args...); err != nil {
		return err
	}
	if s.channel != "" {
		var b strings.Builder
		for i, f := range fields {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(f.Key)
			b.WriteString(": ")
			b.WriteString(f.Value)
		}
		if err := s.conn.Send("PUBLISH", s.channel, b.String()); err != nil {
			return err
		}
	}
	// Do("") flushes the pipeline and reads the pending replies.
	_, err := s.conn.Do("")
	return err
}

func (s *Redis) Flush() error { return s.conn.Flush() }

func (s *Redis) Close() error { return s.conn.Close() }
