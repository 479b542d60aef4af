// Command veilleboard builds the regulatory-watch compliance dashboard from
// the register exports and serves the control sheets.
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatalf("%v", err)
	}
}
