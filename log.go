package goBroker

import "log"

// logSwallowed records a secondary failure that the pipeline deliberately
// does not propagate (listener panics, persistence save errors).
func logSwallowed(msg string, err error) {
	if err != nil {
		log.Print("goBroker: ", msg, ": ", err)
		return
	}
	log.Print("goBroker: ", msg)
}
