package app

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	sectionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("236"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activityStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	staleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	dividerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("29")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Bold(true)
	reportBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("69")).Padding(0, 1)
)
