package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aurabloom/aurabloom/activitypub"
	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/util"
	"github.com/aurabloom/aurabloom/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	database, err := db.Open(conf.Conf.DatabasePath)
	if err != nil {
		log.Fatalln(err)
	}
	defer database.Close()

	if conf.Conf.WithFederation {
		activitypub.StartDeliveryWorker(database)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Router(database, conf); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping federation server")
}
