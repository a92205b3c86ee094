package plugin

// Drivers register themselves to coremain in their init funcs.
import (
	_ "github.com/pmkol/resolver-x/plugin/driver/dns_forward"
	_ "github.com/pmkol/resolver-x/plugin/driver/shared_cache"
	_ "github.com/pmkol/resolver-x/plugin/driver/static"
)
