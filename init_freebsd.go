package pingback

import (
	"log/syslog"

	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func init() {
	// Send all logs of severity info and higher to local syslog daemon
	var hook, err = lSyslog.NewSyslogHook("", "", syslog.LOG_INFO, "pingback")
	if err == nil {
		log.Hooks.Add(hook)
	} else {
		log.Printf("Error getting syslog hook: %s", err)
	}
}
