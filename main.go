// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/stabl-dev/stabl/cmd/stabl"

func main() {
	cmd.Execute()
}
