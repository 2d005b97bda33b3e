package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/JRI98/smartchat/client/api"
	"github.com/JRI98/smartchat/client/database"
	"github.com/JRI98/smartchat/client/inbox"
	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/sealbox"
	"github.com/JRI98/smartchat/internal/smartmessage"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/JRI98/smartchat/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/term"
)

func readPassword() ([]byte, error) {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}

type Args struct {
	DatabasePath  string
	ServerURL     string
	Notifications string
}

func getArgs() Args {
	databasePath := flag.String("db", "database.db", "Path to the database file")
	serverURL := flag.String("server", "http://localhost:3000", "Relay server URL")
	notifications := flag.String("notifications", "", "Address of the notifications publisher")

	flag.Parse()

	return Args{
		DatabasePath:  *databasePath,
		ServerURL:     *serverURL,
		Notifications: *notifications,
	}
}

type Program struct {
	database  *database.Database
	api       *api.Client
	wallet    *wallet.Wallet
	publisher *identity.Identity
	stdin     *bufio.Reader
	context   context.Context
}

func (program Program) readInput() (string, error) {
	text, err := program.stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(text, "\r\n"), nil
}

func (program Program) pause() error {
	fmt.Print("\nPress enter to return...")
	_, err := program.readInput()
	return err
}

// pick reads a 1-based choice out of n items. It returns -1 for "go back".
func (program Program) pick(n int) (int, error) {
	fmt.Printf("Enter number (or %d to go back): ", n+1)
	input, err := program.readInput()
	if err != nil {
		return 0, err
	}

	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > n+1 {
		return 0, fmt.Errorf("invalid choice %q", input)
	}

	if choice == n+1 {
		return -1, nil
	}
	return choice - 1, nil
}

func (program Program) contacts() (inbox.Contacts, error) {
	contacts, err := program.database.GetContacts(program.context)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	return inbox.Contacts(contacts), nil
}

func unlock(ctx context.Context, db *database.Database) error {
	passwordSalt, err := db.GetPassword(ctx)
	firstRun := errors.Is(err, sql.ErrNoRows)
	if err != nil && !firstRun {
		return fmt.Errorf("failed to get password: %w", err)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	if firstRun {
		passwordSalt, err = sealbox.NewSalt()
		if err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}

		err = db.CreatePassword(ctx, passwordSalt)
		if err != nil {
			return fmt.Errorf("failed to create password: %w", err)
		}
	}

	databaseEncryptionKey, err := sealbox.DeriveKey(password, passwordSalt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return db.SetEncryptionKey(databaseEncryptionKey)
}

func (program *Program) loadWallet() error {
	w, err := program.database.GetWallet(program.context)
	if err == nil {
		program.wallet = w
		return nil
	}
	if errors.Is(err, sealbox.ErrMalformed) {
		return fmt.Errorf("wrong password: %w", err)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get wallet: %w", err)
	}

	fmt.Println("No wallet found")
	fmt.Println("1. Generate new wallet")
	fmt.Println("2. Import private key")
	fmt.Print("> ")
	action, err := program.readInput()
	if err != nil {
		return err
	}

	switch action {
	case "1":
		w, err = wallet.Generate()
	case "2":
		fmt.Print("Private key (base58): ")
		var encoded string
		encoded, err = program.readInput()
		if err != nil {
			return err
		}

		var privateKey solana.PrivateKey
		privateKey, err = solana.PrivateKeyFromBase58(encoded)
		if err != nil {
			return fmt.Errorf("failed to decode private key: %w", err)
		}
		w, err = wallet.FromPrivateKey(privateKey)
	default:
		return fmt.Errorf("invalid choice %q", action)
	}
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	err = program.database.SaveWallet(program.context, w)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}

	program.wallet = w
	return nil
}

func main() {
	clearScreen()

	args := getArgs()

	ctx := context.Background()

	var publisher *identity.Identity
	if args.Notifications != "" {
		id, err := identity.Parse(args.Notifications)
		if err != nil {
			panic(fmt.Errorf("invalid notifications publisher: %w", err))
		}
		publisher = &id
	}

	database, err := database.Open(args.DatabasePath)
	if err != nil {
		panic(fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	err = unlock(ctx, database)
	if err != nil {
		panic(fmt.Errorf("failed to unlock database: %w", err))
	}

	program := &Program{
		database:  database,
		publisher: publisher,
		stdin:     bufio.NewReader(os.Stdin),
		context:   ctx,
	}

	err = program.loadWallet()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		panic(fmt.Errorf("failed to load wallet: %w", err))
	}

	program.api = api.New(args.ServerURL, program.wallet)

	err = program.mainScreen()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		panic(fmt.Errorf("main screen error: %w", err))
	}
}

func (program Program) mainScreen() error {
	for {
		clearScreen()

		fmt.Println("1. Inbox")
		fmt.Println("2. New Thread")
		fmt.Println("3. Notifications")
		fmt.Println("4. Contacts")
		fmt.Println("5. Wallet")
		fmt.Println("6. Quit")
		fmt.Print("> ")
		action, err := program.readInput()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch action {
		case "1":
			err = program.inboxScreen()
		case "2":
			err = program.createThreadScreen()
		case "3":
			err = program.notificationsScreen()
		case "4":
			err = program.contactsScreen()
		case "5":
			err = program.walletScreen()
		case "6":
			clearScreen()
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return err
			}
			fmt.Println("Error:", err)
			if err := program.pause(); err != nil {
				return err
			}
		}
	}
}

// inboxPreviewLimit is how many messages the inbox shows under the selected
// thread.
const inboxPreviewLimit = 5

// inboxScreen lists the threads. Picking a thread selects it and previews
// its latest messages below the list; picking the selected thread opens it.
func (program Program) inboxScreen() error {
	var selected *thread.ID
	for {
		clearScreen()

		summaries, err := program.api.ListThreads(program.context)
		if err != nil {
			return fmt.Errorf("failed to list threads: %w", err)
		}

		contacts, err := program.contacts()
		if err != nil {
			return err
		}

		list := inbox.ThreadList{
			Summaries: summaries,
			Selected:  selected,
			// Wallets are local and unlocked before any screen is shown.
			CanEncrypt: true,
			Me:         program.wallet.Identity(),
			Contacts:   contacts,
		}

		preview := list.SelectedThread()
		if preview == nil {
			list.Selected = nil
		}

		err = inbox.RenderThreadList(os.Stdout, list)
		if err != nil {
			return fmt.Errorf("failed to render threads: %w", err)
		}

		if preview != nil {
			messages, err := program.api.Messages(program.context, preview.ID.Address, inboxPreviewLimit)
			if err != nil {
				return fmt.Errorf("failed to get messages: %w", err)
			}

			fmt.Println()
			err = inbox.RenderThread(os.Stdout, inbox.ThreadView{
				Thread:   *preview,
				Messages: messages,
				Wallet:   program.wallet,
				Contacts: contacts,
			})
			if err != nil {
				return fmt.Errorf("failed to render thread: %w", err)
			}
			fmt.Println("Pick the selected thread again to open it.")
		}

		choice, err := program.pick(len(summaries))
		if err != nil {
			return err
		}
		if choice < 0 {
			return nil
		}

		clicked := summaries[choice].Thread.ID
		open := list.Click(clicked)
		selected = list.Selected
		if !open {
			continue
		}

		err = program.threadScreen(clicked.Address)
		if err != nil {
			return fmt.Errorf("thread screen error: %w", err)
		}
	}
}

func (program Program) threadScreen(address identity.Identity) error {
	for {
		clearScreen()

		t, err := program.api.GetThread(program.context, address)
		if err != nil {
			return fmt.Errorf("failed to get thread: %w", err)
		}

		messages, err := program.api.Messages(program.context, address, 0)
		if err != nil {
			return fmt.Errorf("failed to get messages: %w", err)
		}

		contacts, err := program.contacts()
		if err != nil {
			return err
		}

		err = inbox.RenderThread(os.Stdout, inbox.ThreadView{
			Thread:   t,
			Messages: messages,
			Wallet:   program.wallet,
			Contacts: contacts,
		})
		if err != nil {
			return fmt.Errorf("failed to render thread: %w", err)
		}

		fmt.Println()
		fmt.Println("1. Send Message")
		fmt.Println("2. Refresh")
		fmt.Println("3. Settings")
		fmt.Println("4. Go Back")
		fmt.Print("> ")
		action, err := program.readInput()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch action {
		case "1":
			if !t.IsWritable() {
				fmt.Println("You cannot write to this thread")
				if err := program.pause(); err != nil {
					return err
				}
				continue
			}
			err := program.sendMessageScreen(t)
			if err != nil {
				return fmt.Errorf("send message screen error: %w", err)
			}
		case "2":
		case "3":
			deleted, err := program.settingsScreen(t, contacts)
			if err != nil {
				return fmt.Errorf("settings screen error: %w", err)
			}
			if deleted {
				return nil
			}
		case "4":
			return nil
		}
	}
}

// previewPayment shows how a payment request will be rendered before it is
// sent. It returns false if the user cancels.
func (program Program) previewPayment(text string) (bool, error) {
	if !smartmessage.IsCandidate(text) {
		return true, nil
	}

	parsed, err := program.api.Classify(program.context, text)
	if err != nil {
		var statusErr *api.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnprocessableEntity {
			return false, fmt.Errorf("failed to classify message: %w", err)
		}
		fmt.Println("This looks like a payment request but it is invalid. It will be shown as plain text.")
	} else {
		fmt.Printf("Payment request: %s\n", parsed.Request.Label)
	}

	fmt.Print("Send? (y/N): ")
	answer, err := program.readInput()
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}

func (program Program) sendMessageScreen(t thread.Thread) error {
	fmt.Printf("Message (max %d characters): ", thread.MaxMessageLength)
	message, err := program.readInput()
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if err := thread.ValidateText(message); err != nil {
		fmt.Println(err)
		return program.pause()
	}

	send, err := program.previewPayment(message)
	if err != nil {
		return err
	}
	if !send {
		return nil
	}

	data := api.SendData{Text: message}
	if t.EncryptionEnabled {
		recipient, ok := t.Recipient()
		if !ok {
			return fmt.Errorf("encrypted thread has no recipient")
		}

		ciphertext, err := inbox.Seal(program.wallet, recipient.Identity, message)
		if err != nil {
			return fmt.Errorf("failed to encrypt message: %w", err)
		}
		data = api.SendData{Ciphertext: ciphertext}
	}

	err = program.api.Send(program.context, t.ID.Address, data)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (program Program) settingsScreen(t thread.Thread, contacts inbox.Contacts) (deleted bool, _ error) {
	clearScreen()

	err := inbox.RenderSettings(os.Stdout, t, contacts)
	if err != nil {
		return false, fmt.Errorf("failed to render settings: %w", err)
	}

	if !t.IsAdminable() {
		return false, program.pause()
	}

	fmt.Println()
	fmt.Println("1. Delete history")
	fmt.Println("2. Go Back")
	fmt.Print("> ")
	action, err := program.readInput()
	if err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}
	if action != "1" {
		return false, nil
	}

	fmt.Print("Delete this thread and all of its messages? (y/N): ")
	answer, err := program.readInput()
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(answer, "y") {
		return false, nil
	}

	err = program.api.DeleteThread(program.context, t.ID.Address)
	if err != nil {
		return false, fmt.Errorf("failed to delete thread: %w", err)
	}

	return true, nil
}

func (program Program) createThreadScreen() error {
	clearScreen()

	fmt.Print("Member addresses (comma separated): ")
	input, err := program.readInput()
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	members := []identity.Identity{}
	for _, address := range strings.Split(input, ",") {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}

		member, err := identity.Parse(address)
		if err != nil {
			return fmt.Errorf("invalid member address %q: %w", address, err)
		}
		members = append(members, member)
	}

	encrypted := false
	if len(members) == 1 {
		fmt.Print("Encrypt messages? (y/N): ")
		answer, err := program.readInput()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		encrypted = strings.EqualFold(answer, "y")
	}

	contacts, err := program.contacts()
	if err != nil {
		return err
	}

	names := map[identity.Identity]string{}
	for _, member := range members {
		if _, ok := contacts[member.String()]; ok {
			continue
		}

		fmt.Printf("Name for %s (optional): ", member)
		name, err := program.readInput()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if name != "" {
			names[member] = name
		}
	}

	err = program.database.SetContacts(program.context, names)
	if err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}

	created, err := program.api.CreateThread(program.context, api.CreateThreadData{
		OtherMembers: members,
		Encrypted:    encrypted,
	})
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	return program.threadScreen(created.ID.Address)
}

func (program Program) notificationsScreen() error {
	clearScreen()

	if program.publisher == nil {
		fmt.Println("No notifications publisher configured. Start the client with -notifications <address>.")
		return program.pause()
	}

	summaries, err := program.api.ListThreads(program.context)
	if err != nil {
		return fmt.Errorf("failed to list threads: %w", err)
	}

	center := inbox.NotificationCenter{
		WalletConnected: true,
		Thread:          inbox.FindNotificationsThread(summaries, *program.publisher),
	}

	if center.Thread != nil {
		center.Messages, err = program.api.Messages(program.context, center.Thread.ID.Address, 0)
		if err != nil {
			return fmt.Errorf("failed to get notifications: %w", err)
		}
	}

	err = inbox.RenderNotifications(os.Stdout, center)
	if err != nil {
		return fmt.Errorf("failed to render notifications: %w", err)
	}

	if center.State() != inbox.NotificationsNoThread {
		return program.pause()
	}

	fmt.Println()
	fmt.Println("1. Enable notifications")
	fmt.Println("2. Go Back")
	fmt.Print("> ")
	action, err := program.readInput()
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if action != "1" {
		return nil
	}

	_, err = program.api.CreateThread(program.context, api.CreateThreadData{
		OtherMembers: []identity.Identity{*program.publisher},
	})
	if err != nil {
		return fmt.Errorf("failed to create notifications thread: %w", err)
	}

	return program.notificationsScreen()
}

func (program Program) contactsScreen() error {
	for {
		clearScreen()

		contacts, err := program.contacts()
		if err != nil {
			return err
		}

		addresses := make([]string, 0, len(contacts))
		for address := range contacts {
			addresses = append(addresses, address)
		}
		slices.SortFunc(addresses, func(a, b string) int {
			return strings.Compare(contacts[a], contacts[b])
		})

		if len(addresses) == 0 {
			fmt.Println("No contacts")
		}
		for i, address := range addresses {
			fmt.Printf("%d. %s (%s)\n", i+1, contacts[address], address)
		}

		fmt.Println()
		fmt.Println("a. Add or rename contact")
		fmt.Println("d. Delete contact")
		fmt.Println("b. Go Back")
		fmt.Print("> ")
		action, err := program.readInput()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch action {
		case "a":
			fmt.Print("Address: ")
			address, err := program.readInput()
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			id, err := identity.Parse(strings.TrimSpace(address))
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}

			fmt.Print("Name: ")
			name, err := program.readInput()
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			err = program.database.SetContact(program.context, id, name)
			if err != nil {
				return fmt.Errorf("failed to save contact: %w", err)
			}
		case "d":
			choice, err := program.pick(len(addresses))
			if err != nil {
				return err
			}
			if choice < 0 {
				continue
			}

			err = program.database.DeleteContact(program.context, identity.MustParse(addresses[choice]))
			if err != nil {
				return fmt.Errorf("failed to delete contact: %w", err)
			}
		case "b":
			return nil
		}
	}
}

func (program Program) walletScreen() error {
	clearScreen()

	fmt.Println("Address:", program.wallet.Identity())
	fmt.Println()
	fmt.Println("1. Show private key")
	fmt.Println("2. Go Back")
	fmt.Print("> ")
	action, err := program.readInput()
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if action == "1" {
		fmt.Println("Private key:", solana.PrivateKey(program.wallet.PrivateKey()).String())
		return program.pause()
	}

	return nil
}
