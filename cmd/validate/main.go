package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/perun-network/perun-did-orderbook/internal/config"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/orderbook"
	"github.com/perun-network/perun-did-orderbook/internal/validator"
)

// Request is a ledger snapshot together with a transaction to apply.
type Request struct {
	// Now is the ledger time in milliseconds.
	Now   int64         `json:"now"`
	UTxOs []ledger.UTxO `json:"utxos"`
	Tx    *ledger.Tx    `json:"tx,omitempty"`
}

// Result is the verdict on a request's transaction.
type Result struct {
	Accepted bool         `json:"accepted"`
	TxID     *ledger.TxID `json:"txID,omitempty"`
	Code     string       `json:"code,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("Command failed")
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile, reqFile string
	root := &cobra.Command{
		Use:          "validate",
		Short:        "Validate order book transactions against a ledger snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, req, _, err := load(cfgFile, reqFile)
			if err != nil {
				return err
			}
			if req.Tx == nil {
				return errors.New("request carries no transaction")
			}
			res := apply(set, *req.Tx)
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
				return errors.WithStack(err)
			}
			if !res.Accepted {
				return errors.Errorf("rejected: %s", res.Code)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file")
	root.PersistentFlags().StringVarP(&reqFile, "request", "r", "-", "request file, - for stdin")

	root.AddCommand(&cobra.Command{
		Use:   "book",
		Short: "Print the orders locked in the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, cfg, err := load(cfgFile, reqFile)
			if err != nil {
				return err
			}
			book := orderbook.NewBook(set, cfg.ContractAddress(), cfg.Logger())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return errors.WithStack(enc.Encode(book.Snapshot()))
		},
	})
	return root
}

// load parses the config and restores the snapshot of the request with
// the configured contract installed.
func load(cfgFile, reqFile string) (*ledger.UTxOSet, Request, config.Config, error) {
	cfg, err := config.Parse(cfgFile)
	if err != nil {
		return nil, Request{}, cfg, err
	}
	req, err := readRequest(reqFile)
	if err != nil {
		return nil, Request{}, cfg, err
	}
	contract, err := cfg.Contract()
	if err != nil {
		return nil, Request{}, cfg, err
	}

	set := ledger.NewUTxOSet(cfg.Logger())
	set.RegisterScript(cfg.ContractHash, contract)
	set.SetTime(req.Now)
	for _, u := range req.UTxOs {
		if err := set.Insert(u); err != nil {
			return nil, Request{}, cfg, err
		}
	}
	return set, req, cfg, nil
}

func readRequest(file string) (Request, error) {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return Request{}, errors.WithStack(err)
		}
		defer f.Close()
		r = f
	}
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, errors.Wrap(err, "decoding request")
	}
	return req, nil
}

func apply(set *ledger.UTxOSet, tx ledger.Tx) Result {
	id, err := set.Apply(tx)
	if err != nil {
		return Result{Code: validator.Code(err), Error: err.Error()}
	}
	return Result{Accepted: true, TxID: &id}
}
