// Command dtchat runs a delay-tolerant chat node from a YAML configuration
// and a line-based console.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dtchat"
	"github.com/opd-ai/dtchat/config"
	"github.com/opd-ai/dtchat/message"
	"github.com/opd-ai/dtchat/predict"
	"github.com/opd-ai/dtchat/transport"
)

// consoleObserver prints engine events and drops received files into the
// reception directory. It only logs, so it never re-enters the engine.
type consoleObserver struct {
	receptionDir string
}

func (o *consoleObserver) OnEvent(ev dtchat.Event) {
	switch e := ev.(type) {
	case dtchat.Started:
		logrus.WithField("prediction", e.Prediction).Info("engine started")
	case dtchat.MessageSending:
		logrus.WithField("uuid", e.Message.UUID).Info("sending")
	case dtchat.MessageSent:
		logrus.WithField("uuid", e.Message.UUID).Info("sent")
	case dtchat.MessageReceived:
		o.printReceived(e.Message)
	case dtchat.AckSent:
		logrus.WithField("for", e.MessageUUID).Debug("ack sent")
	case dtchat.AckReceived:
		logrus.WithFields(logrus.Fields{
			"uuid": e.Message.UUID,
			"at":   e.Message.ReceiveTime.Format(true, true, " ", time.Local),
		}).Info("acknowledged by peer")
	case dtchat.HostError:
		logrus.WithField("endpoint", e.Endpoint.String()).Error(e.Detail)
	case dtchat.ProtocolDecodeError:
		logrus.Error(e.Detail)
	case dtchat.ProtocolEncodeError:
		logrus.Error(e.Detail)
	case dtchat.MessageNotFoundError:
		logrus.Warn(e.Detail)
	case dtchat.InternalError:
		logrus.Error(e.Detail)
	case dtchat.TransportError:
		logrus.WithField("event", fmt.Sprintf("%+v", e.Event)).Warn("transport error")
	case dtchat.TransportInfo:
		logrus.WithField("event", fmt.Sprintf("%+v", e.Event)).Debug("transport")
	}
}

func (o *consoleObserver) printReceived(m *message.ChatMessage) {
	when := m.SendTime.Format(false, true, "", time.Local)
	switch c := m.Content.(type) {
	case message.Text:
		fmt.Printf("[%s] %s: %s\n", when, m.SenderUUID, c.Text)
	case message.File:
		path := filepath.Join(o.receptionDir, filepath.Base(c.Name))
		if err := os.WriteFile(path, c.Data, 0o644); err != nil {
			logrus.WithField("error", err).Error("failed to store received file")
			return
		}
		fmt.Printf("[%s] %s sent file %s (%d bytes)\n", when, m.SenderUUID, path, len(c.Data))
	}
}

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		logrus.WithField("error", err).Fatal("cannot load configuration")
	}
	db, err := cfg.BuildStore()
	if err != nil {
		logrus.WithField("error", err).Fatal("cannot build store")
	}

	// The contact-graph routing engine is an external component; a node
	// configured for prediction without one runs with the error state
	// visible rather than failing to start.
	prediction := predict.Disabled()
	if cfg.ContactPlan != "" {
		prediction = predict.Errored(fmt.Sprintf(
			"contact plan %s configured but no routing engine is linked", cfg.ContactPlan))
	}

	chat := dtchat.New(db, prediction)
	chat.AddObserver(&consoleObserver{receptionDir: cfg.FileReceptionDir})
	chat.Start(transport.NewSocketEngine(chat))

	local := db.LocalPeer()
	fmt.Printf("dtchat node %s (%s), rooms:\n", local.Name, local.UUID)
	for _, room := range db.Rooms() {
		fmt.Printf("  %s  %s\n", room.UUID, room.Name)
	}
	fmt.Println(`commands: "<room-uuid> <text>", "/file <room-uuid> <path>", "/log", "/quit"`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/log":
			for _, m := range chat.Timeline(message.Relative(local.UUID)) {
				printLogLine(m)
			}
		case strings.HasPrefix(line, "/file "):
			sendFile(chat, line)
		default:
			room, text, ok := strings.Cut(line, " ")
			if !ok {
				fmt.Println("usage: <room-uuid> <text>")
				continue
			}
			if rm := chat.SendToRoom(message.Text{Text: text}, room, true); rm == nil {
				fmt.Println("room unknown, or you are not a participant")
			}
		}
	}
}

func sendFile(chat *dtchat.Chat, line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		fmt.Println("usage: /file <room-uuid> <path>")
		return
	}
	room, path := fields[1], fields[2]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", path, err)
		return
	}
	content := message.File{Name: filepath.Base(path), Data: data}
	if rm := chat.SendToRoom(content, room, true); rm == nil {
		fmt.Println("room unknown, or you are not a participant")
	}
}

func printLogLine(m *message.ChatMessage) {
	when := m.SendTime.Format(true, true, " ", time.Local)
	body := ""
	switch c := m.Content.(type) {
	case message.Text:
		body = c.Text
	case message.File:
		body = fmt.Sprintf("<file %s, %d bytes>", c.Name, len(c.Data))
	}
	fmt.Printf("%s  %-10s  [%s]  %s\n", when, m.SenderUUID, m.Status, body)
}
