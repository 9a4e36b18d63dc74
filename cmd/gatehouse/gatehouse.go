package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/ametel/gatehouse/internal/crypto"
	"github.com/ametel/gatehouse/internal/server"
)

var version string

// stubHandler stands in when no game runtime is attached: it logs the
// completed login and drops the session. A real deployment imports
// internal/server and registers its own SessionHandler.
type stubHandler struct{}

func (stubHandler) HandleSession(sess *server.Session) {
	log.WithFields(log.Fields{
		"username":   sess.Profile.Name,
		"uuid":       sess.Profile.ID,
		"clientAddr": sess.ClientAddr,
	}).Warn("No game runtime attached, dropping session")
	sess.Conn.Close()
}

func generateSecret() string {
	secret := make([]byte, 32)
	crypto.MustRandRead(secret)
	return base64.StdEncoding.EncodeToString(secret)
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	config := flag.String("c", "gatehouse.json", "config: path to the configuration file or its content")
	askVersion := flag.Bool("v", false, "Print the version number")
	printUsage := flag.Bool("h", false, "Print this message")
	genSecret := flag.Bool("secret", false, "Generate and print out a forwarding secret")
	verbosity := flag.String("verbosity", "info", "verbosity level")

	flag.Parse()

	if *askVersion {
		fmt.Printf("gatehouse %s\n", version)
		return
	}
	if *printUsage {
		flag.Usage()
		return
	}
	if *genSecret {
		fmt.Println(generateSecret())
		return
	}

	lvl, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	raw, err := server.ParseConfig(*config)
	if err != nil {
		log.Fatalf("Configuration file error: %v", err)
	}
	if raw.BindAddr == "" {
		raw.BindAddr = ":25565"
	}

	sta, err := server.InitState(raw, stubHandler{})
	if err != nil {
		log.Fatalf("unable to initialise server state: %v", err)
	}

	if raw.AdminAddr != "" {
		adminListener, err := net.Listen("tcp", raw.AdminAddr)
		if err != nil {
			log.Fatalf("unable to listen admin API on %v: %v", raw.AdminAddr, err)
		}
		log.Infof("Admin API listening on %v", raw.AdminAddr)
		go func() {
			log.Error(server.ServeAdmin(adminListener, sta))
		}()
	}

	listener, err := net.Listen("tcp", raw.BindAddr)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Listening on %v", raw.BindAddr)
	server.Serve(listener, sta)
}
