// Command keygen creates the Ed25519 key pair used to sign offline license files.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		outDir = flag.String("out", "", "Directory to write license_sign.key and license_sign.pub (prints env lines when empty)")
		force  = flag.Bool("force", false, "Overwrite existing key files")
	)
	flag.Parse()
	log := logger.L()
	defer logger.Sync()

	keys, err := licensefile.GenerateKeys()
	if err != nil {
		log.Fatal("Failed to generate keys", zap.Error(err))
	}
	privPEM, err := licensefile.EncodePrivateKeyPEM(keys.Private)
	if err != nil {
		log.Fatal("Failed to encode private key", zap.Error(err))
	}
	pubPEM, err := licensefile.EncodePublicKeyPEM(keys.Public)
	if err != nil {
		log.Fatal("Failed to encode public key", zap.Error(err))
	}

	if *outDir == "" {
		fmt.Printf("LICENSE_SIGN_PRIVATE_KEY=%s\n", base64.StdEncoding.EncodeToString(keys.Private.Seed()))
		fmt.Printf("LICENSE_SIGN_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(keys.Public))
		fmt.Fprintf(os.Stderr, "key id: %s\n", keys.KeyID())
		return
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		log.Fatal("Failed to create output directory", zap.Error(err))
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{"license_sign.key", privPEM, 0o600},
		{"license_sign.pub", pubPEM, 0o644},
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.name)
		if _, err := os.Stat(path); err == nil && !*force {
			log.Fatal("Key file already exists, use -force to overwrite", zap.String("path", path))
		}
		if err := os.WriteFile(path, f.data, f.mode); err != nil {
			log.Fatal("Failed to write key file", zap.String("path", path), zap.Error(err))
		}
	}
	log.Info("License signing keys written",
		zap.String("dir", *outDir), zap.String("kid", keys.KeyID()))
}
