package command

import (
	"fmt"
	"io"
	"strings"

	"repcrec/internal/ids"
	"repcrec/internal/obslog"
	"repcrec/internal/txn"
)

var log = obslog.WithComponent("dispatcher")

// Dispatch parses one script line and invokes the matching Manager method.
// It performs no policy: it resolves identifiers, validates arity, and on a
// malformed or unknown line logs a diagnostic and returns without mutating
// mgr, per §7's malformed_command outcome. It never writes to out itself
// except through the Manager methods it calls.
func Dispatch(line string, mgr *txn.Manager, out io.Writer) error {
	cmd, err := Parse(line)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("malformed command line")
		return nil
	}
	if cmd == nil {
		return nil
	}

	switch cmd.Name {
	case "begin":
		txnID, err := requireOneID(cmd, "T")
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.Begin(out, ids.TxnID(txnID))

	case "beginRO":
		txnID, err := requireOneID(cmd, "T")
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.BeginRO(out, ids.TxnID(txnID))

	case "R":
		if len(cmd.Args) != 2 {
			return logMalformed(line, fmt.Errorf("R takes exactly 2 arguments, got %d", len(cmd.Args)))
		}
		txnID, err := parseID(cmd.Args[0], "T")
		if err != nil {
			return logMalformed(line, err)
		}
		varID, err := parseID(cmd.Args[1], "x")
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.Read(out, ids.TxnID(txnID), ids.VarID(varID))

	case "W":
		if len(cmd.Args) != 3 {
			return logMalformed(line, fmt.Errorf("W takes exactly 3 arguments, got %d", len(cmd.Args)))
		}
		txnID, err := parseID(cmd.Args[0], "T")
		if err != nil {
			return logMalformed(line, err)
		}
		varID, err := parseID(cmd.Args[1], "x")
		if err != nil {
			return logMalformed(line, err)
		}
		value, err := parseInt(cmd.Args[2])
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.Write(out, ids.TxnID(txnID), ids.VarID(varID), value)

	case "end":
		txnID, err := requireOneID(cmd, "T")
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.End(out, ids.TxnID(txnID))

	case "fail":
		if len(cmd.Args) != 1 {
			return logMalformed(line, fmt.Errorf("fail takes exactly 1 argument, got %d", len(cmd.Args)))
		}
		siteID, err := parseInt(strings.TrimPrefix(cmd.Args[0], "s"))
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.Fail(out, ids.SiteID(siteID))

	case "recover":
		if len(cmd.Args) != 1 {
			return logMalformed(line, fmt.Errorf("recover takes exactly 1 argument, got %d", len(cmd.Args)))
		}
		siteID, err := parseInt(strings.TrimPrefix(cmd.Args[0], "s"))
		if err != nil {
			return logMalformed(line, err)
		}
		mgr.Recover(out, ids.SiteID(siteID))

	case "dump":
		sites := make([]ids.SiteID, len(cmd.Args))
		for i, a := range cmd.Args {
			n, err := parseInt(strings.TrimPrefix(a, "s"))
			if err != nil {
				return logMalformed(line, err)
			}
			sites[i] = ids.SiteID(n)
		}
		mgr.Dump(out, sites...)

	default:
		return logMalformed(line, fmt.Errorf("unknown command %q", cmd.Name))
	}

	return nil
}

func requireOneID(cmd *Command, prefix string) (int, error) {
	if len(cmd.Args) != 1 {
		return 0, fmt.Errorf("%s takes exactly 1 argument, got %d", cmd.Name, len(cmd.Args))
	}
	return parseID(cmd.Args[0], prefix)
}

func logMalformed(line string, err error) error {
	log.Warn().Err(err).Str("line", line).Msg("malformed command line")
	return nil
}
