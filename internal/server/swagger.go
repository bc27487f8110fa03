package server

//go:generate swag init -g swagger.go -o docs

// @title netmon API
// @version 0.1
// @description Request list, capture controls and check jobs of the netmon network monitor.
// @contact.name netmon Maintainers
// @contact.url https://github.com/raysh454/netmon
// @BasePath /
