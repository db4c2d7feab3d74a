// Command dogbox serves short-lived file drops over HTTP. Settings come from the environment, access
// rules from the JSON document ACCESS_CONFIG_PATH points to.
package main

import (
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := serve(); err != nil {
		log.WithError(err).Fatal("error starting up dogbox or serving requests")
	}
}
