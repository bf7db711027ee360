package voteserver

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/dispatch"
	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
	"github.com/yndnr/votifier-go/internal/session"
	"github.com/yndnr/votifier-go/internal/telemetry/logger"
	"github.com/yndnr/votifier-go/pkg/token"
)

// readChunk is the socket read size. A v1 block or a v2 frame usually
// arrives in one read.
const readChunk = 1024

func defaultChallenge() (string, error) {
	return token.NewChallenge()
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	acceptedAt := time.Now()
	info := dispatch.ConnInfo{
		ID:         ulid.Make().String(),
		RemoteAddr: c.RemoteAddr().String(),
		AcceptedAt: acceptedAt,
	}

	ctx = logger.WithConnID(logger.WithLogger(ctx, s.logger), info.ID)
	log := logger.L(ctx)
	log.Debug("connection accepted", "remote", info.RemoteAddr)

	readTimeout := s.cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}
	writeTimeout := s.cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	challenge, err := s.newChallenge()
	if err != nil {
		log.Error("challenge generation failed", "error", err)
		s.report(info, domain.ErrIOFailure.WithDetails("challenge generation failed").WithCause(err))
		return
	}

	sess := session.New(s.store.Load(), challenge)

	// The greeting goes out before anything is read.
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.Write(sess.Greeting()); err != nil {
		s.recorder.GreetingFailed()
		step := sess.Abort(domain.ErrIOFailure.WithDetails("write greeting").WithCause(err))
		s.finish(ctx, c, sess, info, step, writeTimeout)
		return
	}

	if err := c.SetReadDeadline(acceptedAt.Add(readTimeout)); err != nil {
		step := sess.Abort(domain.ErrIOFailure.WithDetails("set read deadline").WithCause(err))
		s.finish(ctx, c, sess, info, step, writeTimeout)
		return
	}

	buf := make([]byte, readChunk)
	var step session.Step
	for !step.Done {
		n, err := c.Read(buf)
		if n > 0 {
			step = sess.Feed(buf[:n])
			if step.Done {
				break
			}
		}
		if err != nil {
			step = s.readFailure(sess, err)
		}
	}

	s.recorder.ObserveDecode(sess.Version(), time.Since(acceptedAt).Seconds())
	s.finish(ctx, c, sess, info, step, writeTimeout)
}

// readFailure maps a read error onto the session.
func (s *Server) readFailure(sess *session.Session, err error) session.Step {
	if errors.Is(err, io.EOF) {
		return sess.EndOfInput()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return sess.Abort(domain.ErrTimeout.WithDetails("no complete frame before deadline").WithCause(err))
	}
	if errors.Is(err, net.ErrClosed) && !s.running.Load() {
		return sess.Abort(domain.ErrIOFailure.WithDetails("server shutting down").WithCause(err))
	}
	return sess.Abort(domain.ErrIOFailure.WithCause(err))
}

// finish acts on a terminal step: exactly one Dispatch or ReportError.
func (s *Server) finish(ctx context.Context, c net.Conn, sess *session.Session, info dispatch.ConnInfo, step session.Step, writeTimeout time.Duration) {
	info.Version = sess.Version()
	log := logger.L(ctx)

	switch {
	case step.Vote != nil:
		s.dispatcher.Dispatch(*step.Vote, sess.Version())
		if sess.Version() == domain.ProtocolV2 && s.cfg.V2Ack {
			_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.Write(v2.Ack); err != nil {
				log.Debug("v2 acknowledgement not delivered", "error", err)
			}
		}
		log.Debug("vote accepted", "protocol", sess.Version().String(), "service", step.Vote.ServiceName)
	case step.Err != nil:
		s.report(info, step.Err)
	}
}

func (s *Server) report(info dispatch.ConnInfo, err error) {
	s.dispatcher.ReportError(info, domain.KindOf(err), err)
}
