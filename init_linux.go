package pingback

import (
	"os"

	"github.com/sirupsen/logrus"
)

func init() {
	log.Out = os.Stdout
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
}
