package device

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/command"
	"github.com/pdf/goyeelight/protocol/packet"
	"github.com/pdf/goyeelight/protocol/shared"
)

// MusicMode reports whether commands are currently streamed over a music
// connection
func (b *Bulb) MusicMode() bool {
	b.RLock()
	defer b.RUnlock()
	return b.music != nil
}

// StartMusic switches the bulb to music mode.  A listener is opened on port
// (0 picks a free one), and the bulb is asked to connect back to host:port.
// An empty host uses the local address of the control connection.
//
// The switch is refused with a *common.InvalidStateError while any other
// command is in flight, since responses can not be received in music mode.
func (b *Bulb) StartMusic(ctx context.Context, host string, port int) error {
	if host != `` {
		if err := (command.SetMusic{On: true, Host: host, Port: 1}).Validate(); err != nil {
			return err
		}
	}
	if !b.desc.Supports(`set_music`) {
		return &common.ValidationError{Field: `method`, Value: `set_music`, Reason: `not supported by ` + b.ID()}
	}

	if !b.cmdMu.TryLock() {
		return &common.InvalidStateError{State: `commands are in flight`, Op: `set_music`}
	}
	defer b.cmdMu.Unlock()

	if b.MusicMode() {
		return nil
	}
	if _, err := b.connection(ctx); err != nil {
		return err
	}
	if host == `` {
		b.RLock()
		conn := b.conn
		b.RUnlock()
		if conn == nil {
			return b.connErr(`music`, common.ErrNotConnected)
		}
		if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
			host = addr.IP.String()
		}
	}

	listener, err := net.Listen(`tcp`, net.JoinHostPort(``, strconv.Itoa(port)))
	if err != nil {
		return &common.ConnectionError{Address: net.JoinHostPort(``, strconv.Itoa(port)), Op: `listen`, Err: err}
	}
	defer listener.Close()
	port = listener.Addr().(*net.TCPAddr).Port

	type accepted struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		conn, err := listener.Accept()
		acceptCh <- accepted{conn: conn, err: err}
	}()
	abandon := func() {
		_ = listener.Close()
		go func() {
			if a := <-acceptCh; a.conn != nil {
				_ = a.conn.Close()
			}
		}()
	}

	method, params, err := command.Encode(command.SetMusic{On: true, Host: host, Port: port})
	if err != nil {
		abandon()
		return err
	}
	if _, err := b.request(ctx, method, params); err != nil {
		abandon()
		return err
	}

	timer := time.NewTimer(b.config.MusicTimeout)
	defer timer.Stop()

	var a accepted
	select {
	case a = <-acceptCh:
	case <-timer.C:
		abandon()
		b.cancelMusic()
		return &common.ConnectionError{Address: listener.Addr().String(), Op: `accept`, Err: common.ErrTimeout}
	case <-ctx.Done():
		abandon()
		b.cancelMusic()
		return ctx.Err()
	}
	if a.err != nil {
		b.cancelMusic()
		return &common.ConnectionError{Address: listener.Addr().String(), Op: `accept`, Err: a.err}
	}

	music := packet.NewConn(a.conn)
	b.Lock()
	if b.calls == nil {
		b.Unlock()
		_ = music.Close()
		return b.connErr(`music`, common.ErrNotConnected)
	}
	b.music = music
	b.state = StateMusicMode
	b.Unlock()

	go b.musicLoop(music)
	common.Log.Debugf("%s entered music mode from %s", b.ID(), music.Address())
	b.publish(common.EventMusicMode{ID: b.ID(), Enabled: true})

	return nil
}

// StopMusic leaves music mode and tells the bulb over the control
// connection
func (b *Bulb) StopMusic(ctx context.Context) error {
	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()

	b.RLock()
	music := b.music
	b.RUnlock()
	if music == nil {
		return nil
	}
	b.dropMusic(music, nil)

	b.RLock()
	connected := b.calls != nil
	b.RUnlock()
	if !connected {
		return nil
	}
	method, params, err := command.Encode(command.SetMusic{})
	if err != nil {
		return err
	}
	_, err = b.request(ctx, method, params)
	return err
}

// musicLoop only watches for the bulb closing the music connection, the
// bulb never writes to it
func (b *Bulb) musicLoop(music *packet.Conn) {
	for {
		_, err := music.ReadMessage()
		if err != nil && common.IsFatal(err) {
			b.dropMusic(music, err)
			return
		}
	}
}

// cancelMusic tells the bulb to stop trying to connect back after a failed
// StartMusic.  Failures are only logged.
func (b *Bulb) cancelMusic() {
	timeout := b.config.Timeout
	if timeout <= 0 {
		timeout = shared.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	method, params, err := command.Encode(command.SetMusic{})
	if err == nil {
		_, err = b.request(ctx, method, params)
	}
	if err != nil {
		common.Log.Debugf("Failed cancelling music mode on %s: %v", b.ID(), err)
	}
}

// dropMusic leaves music mode if music is still the active music
// connection
func (b *Bulb) dropMusic(music *packet.Conn, err error) {
	b.Lock()
	if b.music != music {
		b.Unlock()
		return
	}
	b.music = nil
	if b.calls != nil {
		b.state = StateConnected
	} else {
		b.state = StateDisconnected
	}
	b.Unlock()

	_ = music.Close()
	if err != nil {
		common.Log.Debugf("%s left music mode: %v", b.ID(), err)
	}
	b.publish(common.EventMusicMode{ID: b.ID(), Enabled: false})
}
