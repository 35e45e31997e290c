package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-mclib/imageonmap/pkg/config"
	"github.com/go-mclib/imageonmap/pkg/helpers"
	"github.com/go-mclib/imageonmap/pkg/logging"
	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/go-mclib/imageonmap/pkg/server"
	"github.com/go-mclib/imageonmap/pkg/server/modules/imagemap"
	"github.com/sirupsen/logrus"
)

func main() {
	var f helpers.Flags
	helpers.RegisterFlags(&f)
	flag.Parse()

	cfg, err := config.Load(f.ConfigFile, f.Overrides())
	if err != nil {
		logrus.Fatal(err)
	}
	logger, logFile, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		logrus.Fatal(err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	s, err := helpers.NewServer(cfg, logger, logFile)
	if err != nil {
		logger.Fatal(err)
	}

	// the host hands out the map item; here it is only announced
	imagemap.From(s).OnMapCreated(func(sender server.CommandSender, id mapimage.MapID, buf *mapimage.Buffer) {
		logger.WithFields(logrus.Fields{
			"map":    id,
			"source": buf.Meta().Crop.Source,
		}).Infof("map item ready for %s", sender.Name())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := helpers.Run(ctx, s, cfg.HTTPAddr); err != nil {
		logger.Println(err)
	}
}
