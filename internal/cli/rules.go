package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/classify"
)

// RunRules prints the active classification rule table as YAML. With no
// --rules flag it dumps the built-in table, which doubles as a starting point
// for a custom one.
func RunRules(args []string) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	var rulesPath string
	fs.StringVar(&rulesPath, "rules", "", "YAML classification rule table to validate and print (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("rules takes no positional arguments")
	}
	return RunRulesLogic(os.Stdout, rulesPath)
}

// RunRulesLogic is the testable core behind RunRules.
func RunRulesLogic(out io.Writer, rulesPath string) error {
	table, err := LoadTableArg(rulesPath)
	if err != nil {
		return err
	}
	return classify.WriteTable(out, table)
}
