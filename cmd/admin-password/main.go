// Command admin-password reads a password from stdin and prints the
// Argon2id hash to store in SMM_ADMIN_PASSWORD_HASH.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
	"github.com/angelmondragon/smm-storefront/pkg/security"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin-password"})
	_ = godotenv.Load()

	var cfg config.PasswordConfig
	if full, err := config.Load(); err == nil {
		cfg = full.Password
	} else {
		logg.Warn(ctx, "config incomplete, using default argon parameters")
		cfg = config.PasswordConfig{ArgonMemoryKB: 65536, ArgonTime: 3, ArgonParallelism: 2, ArgonSaltLen: 16, ArgonKeyLen: 32}
	}

	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		logg.Error(ctx, "read password", err)
		os.Exit(1)
	}
	hash, err := security.HashPassword(strings.TrimRight(line, "\r\n"), cfg)
	if err != nil {
		logg.Error(ctx, "hash password", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
