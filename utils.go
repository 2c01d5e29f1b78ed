package streamkit

import (
	"sync"
)

//****************************************************************
// Internal functions
//****************************************************************

// waitTillRunned will executed function in goroutine but will
// block till when goroutine is scheduled and started.
func waitTillRunned(fx func()) {
	var w sync.WaitGroup
	w.Add(1)
	go func() {
		w.Done()
		fx()
	}()
	w.Wait()
}
