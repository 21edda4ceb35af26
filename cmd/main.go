// cmd/main.go
package main

import (
	"github.com/smartpigdefi/smartpig/app"
)

// @title           Smart Pig API
// @version         1.0
// @description     Local API of the Smart Pig savings client: passkey sessions, PIX deposits and withdrawals.

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
