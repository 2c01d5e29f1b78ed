// Package platform provides process level helpers for commandline
// applications embedding streamkit pipelines.
package platform

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gokit/streamkit"
)

// AwaitInterrupt will setup signalling for use in a commandline application
// waiting for ctrl-c or a SIGTERM, SIGINT or SIGQUIT signal, then runs
// giving finalizers in order. It is a blocking call and will block till
// signal is received.
func AwaitInterrupt(fins ...func() error) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-signals
	fmt.Println("Stopping")

	for _, fin := range fins {
		if err := fin(); err != nil {
			fmt.Printf("finalizer failed: %+v\n", err)
		}
	}
}

// AwaitSubjectInterrupt will setup signalling for use in a commandline
// application waiting for ctrl-c or a SIGTERM, SIGINT or SIGQUIT signal
// to close provided subject. It is a blocking call and will block till
// signal is received.
func AwaitSubjectInterrupt(sb streamkit.Subject) {
	AwaitInterrupt(sb.Close)
}

// AwaitCoroutineInterrupt will setup signalling for use in a commandline
// application waiting for ctrl-c or a SIGTERM, SIGINT or SIGQUIT signal
// to finalize provided coroutine. It is a blocking call and will block
// till signal is received.
func AwaitCoroutineInterrupt(co streamkit.Coroutine) {
	AwaitInterrupt(co.Finalize)
}
