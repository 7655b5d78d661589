// Command gen-token prints an HS256 bearer token for a named identity, for
// use against a server running with AUTH0_TEST_MODE=1.
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"ledger-lists/api"
	"ledger-lists/identity"
)

func main() {
	var (
		secret     = pflag.String("secret", os.Getenv("TEST_JWT_SECRET"), "HS256 shared secret")
		ttl        = pflag.Duration("ttl", time.Hour, "token lifetime")
		identities = pflag.String("identities", "", "optional identities file used to check the name")
	)
	pflag.Parse()

	if pflag.NArg() != 1 {
		log.Fatal("usage: gen-token [flags] <identity-name>")
	}
	name := pflag.Arg(0)

	if *identities != "" {
		reg, err := identity.Load(*identities)
		if err != nil {
			log.Fatalf("identities: %v", err)
		}
		if _, err := reg.Lookup(name); err != nil {
			log.Fatal(err)
		}
	}

	token, err := api.IssueTestToken([]byte(*secret), name, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Print(token)
}
