// TBF file editing subcommands: tbf tlv add|modify|delete and tbf
// credential add|delete operate directly on a local .tbf file's bytes,
// independent of any board connection, so TAB authors and CI pipelines
// can inspect or rewrite a binary without flashing it.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
	"github.com/tock/tockloader/tbf"
)

func addTbfCmds(root *cobra.Command) {
	tbfCmd := &cobra.Command{
		Use:   "tbf",
		Short: "inspect and edit a TBF file's header, TLVs, and footer credentials",
	}
	root.AddCommand(tbfCmd)

	tlvCmd := &cobra.Command{Use: "tlv", Short: "add, modify, or delete a header TLV"}
	tbfCmd.AddCommand(tlvCmd)

	var flagName string
	var flagFlashAddr, flagRamAddr uint32
	var flagMinRamSz uint32

	addMain := &cobra.Command{
		Use:   "add-main <tbf-file>",
		Short: "add or replace the Main TLV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			editHeader(cmd, args[0], func(h *tbf.Header) {
				h.ModifyTlv(tbf.TlvMain, &tbf.Main{MinRamSz: flagMinRamSz})
			})
		},
	}
	addMain.Flags().Uint32Var(&flagMinRamSz, "min-ram-size", 2048, "minimum RAM size in bytes")
	tlvCmd.AddCommand(addMain)

	addPkgName := &cobra.Command{
		Use:   "add-package-name <tbf-file>",
		Short: "add or replace the PackageName TLV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			editHeader(cmd, args[0], func(h *tbf.Header) {
				h.ModifyTlv(tbf.TlvPackageName, &tbf.PackageName{Name: flagName})
			})
		},
	}
	addPkgName.Flags().StringVar(&flagName, "name", "", "package name")
	tlvCmd.AddCommand(addPkgName)

	addFixed := &cobra.Command{
		Use:   "add-fixed-addresses <tbf-file>",
		Short: "add or replace the FixedAddresses TLV",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			editHeader(cmd, args[0], func(h *tbf.Header) {
				h.ModifyTlv(tbf.TlvFixedAddresses, &tbf.FixedAddresses{FlashAddress: flagFlashAddr, RamAddress: flagRamAddr})
			})
		},
	}
	addFixed.Flags().Uint32Var(&flagFlashAddr, "flash-address", 0, "fixed flash address")
	addFixed.Flags().Uint32Var(&flagRamAddr, "ram-address", 0, "fixed RAM address")
	tlvCmd.AddCommand(addFixed)

	deleteTlv := &cobra.Command{
		Use:   "delete <tbf-file> <kind>",
		Short: "delete a TLV by kind name (package-name, fixed-addresses, kernel-version, ...)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			typ, err := tlvKindByName(args[1])
			if err != nil {
				fatal(cmd, err)
			}
			editHeader(cmd, args[0], func(h *tbf.Header) {
				h.DeleteTlv(typ)
			})
		},
	}
	tlvCmd.AddCommand(deleteTlv)

	credCmd := &cobra.Command{Use: "credential", Short: "add or delete a footer credential"}
	tbfCmd.AddCommand(credCmd)

	var flagKeyPath, flagKind string
	var flagId uint32
	addCred := &cobra.Command{
		Use:   "add <tbf-file>",
		Short: "append a footer credential, signed or hashed over the app's integrity blob",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kind, err := credentialKindByName(flagKind)
			if err != nil {
				fatal(cmd, err)
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", args[0]))
			}
			hdr, totalLen, err := tbf.ParseHeader(raw, 0)
			if err != nil {
				fatal(cmd, err)
			}
			if hdr == nil {
				fatal(cmd, errs.New(errs.KindInvalidHeader, "file has no parseable TBF header"))
			}

			_, program := hdr.BinaryDescriptor()
			if program == nil {
				fatal(cmd, errs.New(errs.KindUsage, "credentials require a Program TLV, not Main"))
			}

			var key *tbf.CredentialKey
			if flagKeyPath != "" {
				key, err = loadCredentialKey(flagKeyPath, kind)
				if err != nil {
					fatal(cmd, err)
				}
			}

			blob, err := tbf.IntegrityBlob(raw[:totalLen], program.BinaryEndOffset)
			if err != nil {
				fatal(cmd, err)
			}

			cred, err := tbf.GenerateCredential(kind, key, blob, flagId)
			if err != nil {
				fatal(cmd, err)
			}

			footer, err := tbf.ParseFooter(raw, int(program.BinaryEndOffset), totalLen)
			if err != nil {
				fatal(cmd, err)
			}
			footer.Credentials = append(footer.Credentials, cred)

			if err := rewriteFooter(args[0], raw, hdr, program, footer); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "added %s credential to %s\n", flagKind, args[0])
		},
	}
	addCred.Flags().StringVar(&flagKind, "kind", "sha256", "credential kind: sha256, sha384, sha512, hmac-sha256, hmac-sha384, hmac-sha512, ecdsa-p256, rsa2048, rsa4096, cleartext-id")
	addCred.Flags().StringVar(&flagKeyPath, "key", "", "private key, HMAC secret, or n/a for digest-only kinds")
	addCred.Flags().Uint32Var(&flagId, "id", 0, "4-byte id for the cleartext-id kind")
	credCmd.AddCommand(addCred)

	deleteCred := &cobra.Command{
		Use:   "delete <tbf-file> <kind>",
		Short: "delete a footer credential by kind name",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			kind, err := credentialKindByName(args[1])
			if err != nil {
				fatal(cmd, err)
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", args[0]))
			}
			hdr, totalLen, err := tbf.ParseHeader(raw, 0)
			if err != nil {
				fatal(cmd, err)
			}
			_, program := hdr.BinaryDescriptor()
			if program == nil {
				fatal(cmd, errs.New(errs.KindUsage, "file has no footer region"))
			}

			footer, err := tbf.ParseFooter(raw, int(program.BinaryEndOffset), totalLen)
			if err != nil {
				fatal(cmd, err)
			}
			if !footer.DeleteCredential(kind) {
				fatal(cmd, errs.Newf(errs.KindUsage, "no %s credential present", args[1]))
			}

			if err := rewriteFooter(args[0], raw, hdr, program, footer); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "deleted %s credential from %s\n", args[1], args[0])
		},
	}
	credCmd.AddCommand(deleteCred)
}

// editHeader loads path, applies mutate to its parsed header, then
// rewrites the file with the new header bytes followed by the
// original binary and footer unchanged. header_length and
// base_checksum are recomputed by Encode.
func editHeader(cmd *cobra.Command, path string, mutate func(*tbf.Header)) {
	raw, err := os.ReadFile(path)
	if err != nil {
		fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", path))
	}
	hdr, totalLen, err := tbf.ParseHeader(raw, 0)
	if err != nil {
		fatal(cmd, err)
	}
	if hdr == nil {
		fatal(cmd, errs.New(errs.KindInvalidHeader, "file has no parseable TBF header"))
	}

	oldHdrLen := int(hdr.Base.HeaderLength)
	mutate(hdr)

	newHdrBytes, err := hdr.Encode()
	if err != nil {
		fatal(cmd, err)
	}

	rest := raw[oldHdrLen:totalLen]
	out := append(newHdrBytes, rest...)
	if err := os.WriteFile(path, out, 0644); err != nil {
		fatal(cmd, errs.Wrap(errs.KindUsage, err, "writing %s", path))
	}
}

// rewriteFooter re-emits hdr's binary (unchanged) followed by footer's
// new credential set, writing the result back to path.
func rewriteFooter(path string, raw []byte, hdr *tbf.Header, program *tbf.Program, footer *tbf.Footer) error {
	body := raw[hdr.Base.HeaderLength:program.BinaryEndOffset]
	footerBytes := footer.Encode()
	out := make([]byte, 0, int(hdr.Base.HeaderLength)+len(body)+len(footerBytes))

	hdrBytes, err := hdr.Encode()
	if err != nil {
		return err
	}
	out = append(out, hdrBytes...)
	out = append(out, body...)
	out = append(out, footerBytes...)

	if pad := int(hdr.Base.TotalLength) - len(out); pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	return os.WriteFile(path, out, 0644)
}

func tlvKindByName(name string) (uint16, error) {
	switch name {
	case "main":
		return tbf.TlvMain, nil
	case "program":
		return tbf.TlvProgram, nil
	case "package-name":
		return tbf.TlvPackageName, nil
	case "fixed-addresses":
		return tbf.TlvFixedAddresses, nil
	case "kernel-version":
		return tbf.TlvKernelVersion, nil
	case "writeable-flash-regions":
		return tbf.TlvWriteableFlashRegions, nil
	case "pic-option1":
		return tbf.TlvPicOption1, nil
	case "permissions":
		return tbf.TlvPermissions, nil
	case "persistent-acl":
		return tbf.TlvPersistentAcl, nil
	case "short-id":
		return tbf.TlvShortId, nil
	default:
		return 0, errs.Newf(errs.KindUsage, "unknown TLV kind %q", name)
	}
}

func credentialKindByName(name string) (uint16, error) {
	switch name {
	case "reserved":
		return tbf.CredentialReserved, nil
	case "sha256":
		return tbf.CredentialSha256, nil
	case "sha384":
		return tbf.CredentialSha384, nil
	case "sha512":
		return tbf.CredentialSha512, nil
	case "hmac-sha256":
		return tbf.CredentialHmacSha256, nil
	case "hmac-sha384":
		return tbf.CredentialHmacSha384, nil
	case "hmac-sha512":
		return tbf.CredentialHmacSha512, nil
	case "ecdsa-p256":
		return tbf.CredentialEcdsaNistP256, nil
	case "rsa2048":
		return tbf.CredentialRsa2048, nil
	case "rsa4096":
		return tbf.CredentialRsa4096, nil
	case "cleartext-id":
		return tbf.CredentialCleartextId, nil
	default:
		return 0, errs.Newf(errs.KindUsage, "unknown credential kind %q", name)
	}
}

func loadCredentialKey(path string, kind uint16) (*tbf.CredentialKey, error) {
	switch kind {
	case tbf.CredentialHmacSha256, tbf.CredentialHmacSha384, tbf.CredentialHmacSha512:
		return tbf.LoadHmacSecret(path)
	default:
		return tbf.LoadPrivateKey(path)
	}
}
