package build

//go:generate -command mockgen mockgen -package=build -self_package=github.com/pylock-dev/pylock/build
//go:generate mockgen -destination=./backend_mock.go github.com/pylock-dev/pylock/build Backend
//go:generate mockgen -destination=./environment_mock.go github.com/pylock-dev/pylock/build Environment
//go:generate mockgen -destination=./envfactory_mock.go github.com/pylock-dev/pylock/build EnvFactory
//go:generate mockgen -destination=./resolver_mock.go github.com/pylock-dev/pylock/build Resolver
