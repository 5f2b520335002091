package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vearne/pcapbridge/biz"
	"github.com/vearne/pcapbridge/capture"
	"github.com/vearne/pcapbridge/config"
	"github.com/vearne/pcapbridge/consts"
	"github.com/vearne/pcapbridge/util"
	slog "github.com/vearne/simplelog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const banner string = `
                            __         _     __
   ____  _________ _____   / /_  _____(_)___/ /___ ____
  / __ \/ ___/ __ '/ __ \ / __ \/ ___/ / __  / __ '/ _ \
 / /_/ / /__/ /_/ / /_/ // /_/ / /  / / /_/ / /_/ /  __/
/ .___/\___/\__,_/ .___//_.___/_/  /_/\__,_/\__, /\___/
/_/             /_/                        /____/
`

var settings config.AppSettings
var version bool

func init() {
	flag.BoolVar(&version, "version", false,
		"print version")

	flag.DurationVar(&settings.ExitAfter, "exit-after", 0, "exit after specified duration")

	// #################### capture ######################
	flag.StringVar(&settings.Interface, "i", "",
		`Interface to capture on (promiscuous mode, requires *sudo* access):
                pcapbridge -i eth0 -f "tcp port 80" -output-stdout`)

	flag.StringVar(&settings.Filter, "f", "",
		"BPF filter expression, empty captures everything")

	flag.Var(&settings.Engine, "engine",
		"capture engine: libpcap or raw_socket")

	flag.Var(&settings.Notify, "notify",
		"readiness notification: auto, poll or wait")

	flag.IntVar(&settings.Snaplen, "snaplen", capture.DefaultSnaplen,
		"capture snapshot length in bytes")

	flag.DurationVar(&settings.ReadTimeout, "read-timeout", capture.DefaultReadTimeout,
		"how long one read waits for a packet")

	flag.Var(&settings.BufferSize, "buffer-size",
		`kernel buffer size, e.g. "8mb", 0 keeps the default`)

	flag.StringVar(&settings.TimestampType, "timestamp-type", "",
		`libpcap timestamp source, "go" stamps packets with the local clock`)

	flag.BoolVar(&settings.Immediate, "immediate", false,
		"deliver packets as soon as they arrive instead of batching in the kernel")

	flag.IntVar(&settings.QueueSize, "queue-size", capture.DefaultQueueSize,
		"packets buffered for the consumer before capture blocks, -1 for none")

	flag.BoolVar(&settings.ListIfaces, "list-interfaces", false,
		"list capture devices and exit")

	// #################### inject ######################
	flag.Var(&config.MultiStringOption{Params: &settings.InjectHex}, "inject-hex",
		`Send a raw frame once capture is running, may be repeated:
                pcapbridge -i eth0 -inject-hex="ffffffffffff001c422e604a0806..."`)

	// #################### output ######################
	flag.BoolVar(&settings.OutputStdout, "output-stdout", false,
		"Just prints packets to console")

	flag.BoolVar(&settings.OutputDummy, "output-dummy", false,
		"count packets without printing them")

	flag.IntVar(&settings.OutputRate, "output-rate", 0,
		"packets per second handed to the outputs, 0 means no limit")

	// #################### other ######################
	flag.StringVar(&settings.MetricsAddr, "metrics-addr", "",
		`serve prometheus metrics, e.g. ":9100"`)

	flag.StringVar(&settings.LogFile, "log-file", "",
		"also write logs to this file")

	flag.IntVar(&settings.LogFileMaxSize, "log-file-max-size", 100,
		"MaxSize is the maximum size in megabytes of the log file before it gets rotated.")

	flag.IntVar(&settings.LogFileMaxBackups, "log-file-max-backups", 3,
		"MaxBackups is the maximum number of old log files to retain.")

	flag.IntVar(&settings.LogFileMaxAge, "log-file-max-age", 30,
		`MaxAge is the maximum number of days to retain old log files
				based on the timestamp encoded in their filename`)
}

func main() {
	fmt.Print(banner)

	adjustLogLevel()

	flag.Parse()
	if version {
		fmt.Println("service: pcapbridge")
		fmt.Println("Version", consts.Version)
		fmt.Println("BuildTime", consts.BuildTime)
		fmt.Println("GitTag", consts.GitTag)
		return
	}

	if settings.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    settings.LogFileMaxSize, // megabytes
			MaxBackups: settings.LogFileMaxBackups,
			MaxAge:     settings.LogFileMaxAge, //days
			Compress:   true,
		}))
	}

	if err := settings.Validate(); err != nil {
		slog.Fatal("invalid settings:%v", err)
	}

	if settings.ListIfaces {
		listInterfaces()
		return
	}

	printSettings(&settings)

	metrics := capture.NewMetrics()
	if settings.MetricsAddr != "" {
		if err := metrics.Register(nil); err != nil {
			slog.Fatal("register metrics:%v", err)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("metrics on http://%s/metrics", settings.MetricsAddr)
			if err := http.ListenAndServe(settings.MetricsAddr, mux); err != nil {
				slog.Error("metrics server:%v", err)
			}
		}()
	}

	plugins := biz.NewPlugins(&settings)
	slog.Info("plugins:%v", plugins)
	emitter := biz.NewEmitter(plugins, biz.NewRateLimit(&settings))

	sess, err := capture.Open(settings.CaptureOptions(), emitter.Handle,
		capture.WithErrorHandler(emitter.HandleError),
		capture.WithMetrics(metrics))
	if err != nil {
		slog.Fatal("open %s:%v", settings.Interface, err)
	}
	slog.Info("session %s open on %s", sess.ID(), sess.Interface())

	if len(settings.InjectHex) > 0 {
		n, err := biz.InjectFrames(sess, settings.InjectHex)
		if err != nil {
			slog.Error("inject: sent %d of %d frames:%v", n, len(settings.InjectHex), err)
		} else {
			slog.Info("inject: sent %d frames", n)
		}
	}

	closeCh := make(chan int)
	if settings.ExitAfter > 0 {
		slog.Info("Running pcapbridge for a duration of %s\n", settings.ExitAfter)

		time.AfterFunc(settings.ExitAfter, func() {
			slog.Info("run timeout %s\n", settings.ExitAfter)
			close(closeCh)
		})
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	exit := 0
	select {
	case <-c:
		exit = 1
	case <-closeCh:
		exit = 0
	case err = <-emitter.Fatal():
		slog.Error("capture failed:%v", err)
		exit = 2
	case <-sess.Done():
		slog.Warn("session %s closed", sess.ID())
		exit = 2
	}

	if st, err := sess.Stats(); err == nil {
		slog.Info("received:%d, dropped:%d, ifdropped:%d, queued:%d",
			st.Received, st.Dropped, st.IfDropped, st.Queued)
	}
	sess.Close()
	sess.Wait()
	emitter.Close()
	if limited := emitter.Limited(); limited > 0 {
		slog.Info("output-rate dropped %d packets", limited)
	}
	os.Exit(exit)
}

func listInterfaces() {
	ifaces, err := util.ListInterfaces()
	if err != nil {
		slog.Fatal("list interfaces:%v", err)
	}
	for _, ifi := range ifaces {
		fmt.Printf("%-16s index=%d mtu=%d mac=%s flags=%s\n",
			ifi.Name, ifi.Index, ifi.MTU, ifi.HardwareAddr, strings.Join(ifi.Flags, ","))
		if ifi.Description != "" {
			fmt.Printf("%-16s %s\n", "", ifi.Description)
		}
		for _, ip := range append(ifi.IPv4, ifi.IPv6...) {
			fmt.Printf("%-16s %s\n", "", ip)
		}
	}
}

func printSettings(settings *config.AppSettings) {
	slog.Info("interface, %v", settings.Interface)
	slog.Info("filter, %q", settings.Filter)
	slog.Info("engine, %v", settings.Engine.String())
	slog.Info("notify, %v", settings.Notify.String())
	slog.Info("snaplen, %v", settings.Snaplen)
	slog.Info("read-timeout, %v", settings.ReadTimeout)
	slog.Info("buffer-size, %v", settings.BufferSize.String())
	slog.Info("queue-size, %v", settings.QueueSize)

	slog.Info("output-stdout, %v", settings.OutputStdout)
	slog.Info("output-dummy, %v", settings.OutputDummy)
	slog.Info("output-rate, %v", settings.OutputRate)
	slog.Info("inject-hex, %d frames", len(settings.InjectHex))
}

func adjustLogLevel() {
	logLevel := os.Getenv("SIMPLE_LOG_LEVEL")
	if len(logLevel) > 0 {
		return
	}
	slog.SetLevel(slog.InfoLevel)
}
