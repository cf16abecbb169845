// main.go
package main

import "court-booking/cmd"

func main() {
	cmd.Execute()
}
