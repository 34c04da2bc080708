/*
Copyright © 2026 the cloudscene authors.
This file is part of cloudscene.

cloudscene is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

cloudscene is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with cloudscene.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command cloudscene is a command-line interface for constructing 3D cloud
// scenes from passive imager and active-sensor satellite products.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/cloudscene/cloudsceneutil"
)

func main() {
	if err := cloudsceneutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
