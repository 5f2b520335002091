/*
Package capture bridges a live link-layer capture handle (libpcap or an AF_PACKET
socket) to a single consumer goroutine.

A Session owns the handle. A Notifier tells it when the handle may have packets
queued: the poll strategy watches the handle's descriptor with epoll, the wait
strategy parks a goroutine on its own OS thread inside the handle's timed read.
Either way the dispatch loop drains one packet at a time and submits a copy to a
bounded Queue, whose consumer goroutine runs the EventHandler in capture order.

BPF filters can be replaced while the session is open. A filter that does not
compile leaves the previous one installed; a filter that compiles but can not be
installed closes the session.

example:

	sess, err := capture.Open(capture.Options{Interface: "eth0", Filter: "tcp"},
		func(p *capture.Packet) {
			fmt.Println(p.TvSec(), p.TvUsec(), hex.EncodeToString(p.Data))
		})
	if err != nil {
		// handle error, err is an *OpenError or a *FilterError
	}
	defer sess.Close()

	if err := sess.Send(frame); err != nil {
		// *SendError, the session stays open
	}

Stop and Close never block. When a dispatch loop is running they leave the
release of the handle to that loop; Done is closed once the handle is gone.
*/
package capture // import github.com/vearne/pcapbridge/capture
