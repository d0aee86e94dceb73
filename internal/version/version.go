package version

// Version is set at build time with -ldflags "-X github.com/hashmap-kz/pgreplmon/internal/version.Version=..."
var Version = "dev"
